package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crowdfund-ton/backend/internal/app"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/executor"
	"github.com/crowdfund-ton/backend/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// withEngine builds the engine without a database and runs fn against it.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *app.Engine) error) error {
	cfg := config.Load()
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	} else if level == "info" {
		level = "warn"
	}
	log := logger.New(level, cfg.LogFile)
	defer log.Sync()

	ctx := cmd.Context()
	e, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

// resolve turns a slug, title or raw id into a campaign id.
func resolve(ctx context.Context, e *app.Engine, identifier string) (string, error) {
	res, err := e.Resolver.Resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	e.Log.Debug("identifier resolved", zap.String("identifier", identifier), zap.String("path", res.Path))
	return res.CampaignID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome reports an operation result and turns a non-success final
// status into a command error.
func printOutcome(out *executor.Outcome) error {
	if globalFlags.output == "json" {
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		printOutcomeText(out)
	}
	if !out.Succeeded() {
		return fmt.Errorf("%s finished with status %s", out.Final().Operation, out.Final().Status)
	}
	return nil
}

func printOutcomeText(out *executor.Outcome) {
	for o := out; o != nil; o = o.Fallback {
		fmt.Printf("%-16s %s", o.Operation, o.Status)
		if o.Digest != "" {
			fmt.Printf("  tx=%s", o.Digest)
		}
		if o.Reason != "" {
			fmt.Printf("  reason=%s", o.Reason)
		}
		if o.Error != "" {
			fmt.Printf("  error=%s", o.Error)
		}
		fmt.Println()
	}
}
