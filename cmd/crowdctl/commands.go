package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crowdfund-ton/backend/internal/app"
	"github.com/crowdfund-ton/backend/internal/auth"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/executor"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/rbac"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func resolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <slug|title|id>",
		Short: "Resolve an identifier to a campaign id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				res, err := e.Resolver.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(res)
				}
				fmt.Printf("%s (%s)\n", res.CampaignID, res.Path)
				return nil
			})
		},
	}
}

func viewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <slug|title|id>",
		Short: "Show the reconciled view of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				v, err := e.Campaigns.ResolveAndOpen(ctx, args[0])
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(v)
				}
				c := v.Campaign
				fmt.Printf("%s\n", v.Metadata.Title)
				fmt.Printf("  id:        %s\n", c.ID)
				fmt.Printf("  slug:      %s\n", v.Slug)
				fmt.Printf("  owner:     %s\n", c.Owner)
				fmt.Printf("  state:     %s\n", c.State)
				fmt.Printf("  goal:      %s TON\n", models.FormatTON(c.Goal))
				fmt.Printf("  raised:    %s TON (%.1f%%)\n", models.FormatTON(c.Raised), c.Progress())
				fmt.Printf("  deadline:  %s\n", c.DeadlineAt.Format(time.RFC3339))
				fmt.Printf("  withdrawn: %s\n", v.Withdrawn.Verdict)
				if v.Audit.Mismatch {
					fmt.Printf("  mismatch:  %s\n", v.Audit.Detail)
				}
				if len(v.Degraded) > 0 {
					fmt.Printf("  degraded:  %v\n", v.Degraded)
				}
				if len(v.Truncated) > 0 {
					fmt.Printf("  truncated: %v\n", v.Truncated)
				}
				if v.PendingOperation != "" {
					fmt.Printf("  pending:   %s\n", v.PendingOperation)
				}
				fmt.Printf("  actions:   %v\n", v.Actions)
				return nil
			})
		},
	}
}

func ledgerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <slug|title|id>",
		Short: "Replay the funds flow of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := resolve(ctx, e, args[0])
				if err != nil {
					return err
				}
				l, err := e.Campaigns.GetLedger(ctx, id)
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(l)
				}
				for _, ev := range l.Events {
					line := fmt.Sprintf("%s  %-16s", ev.Timestamp.Format(time.RFC3339), ev.Kind)
					if ev.Kind.CarriesAmount() {
						line += fmt.Sprintf("  %s TON", models.FormatTON(ev.Amount))
					}
					fmt.Println(line)
				}
				fmt.Printf("donated %s, withdrawn %s, refunded %s\n",
					models.FormatTON(l.Balance.TotalDonated),
					models.FormatTON(l.Balance.TotalWithdrawn),
					models.FormatTON(l.Balance.TotalRefunded),
				)
				if len(l.Degraded) > 0 {
					fmt.Printf("degraded kinds: %v\n", l.Degraded)
				}
				if len(l.Truncated) > 0 {
					fmt.Printf("truncated kinds: %v\n", l.Truncated)
				}
				return nil
			})
		},
	}
}

func listCommand() *cobra.Command {
	var (
		query    string
		state    string
		sortBy   string
		limit    int
		archived bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.ListingFilter{Query: query, Sort: sortBy, Limit: limit, IncludeArchived: archived}
			if state != "" {
				st, ok := models.ParseCampaignState(state)
				if !ok {
					return fmt.Errorf("unknown state %q", state)
				}
				filter.State = &st
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				items, err := e.Campaigns.List(ctx, filter)
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(items)
				}
				for _, it := range items {
					fmt.Printf("%-30s %-10s %10s / %-10s %s\n",
						it.Slug, it.State, models.FormatTON(it.Raised), models.FormatTON(it.Goal), it.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search title and description")
	cmd.Flags().StringVar(&state, "state", "", "active, succeeded or failed")
	cmd.Flags().StringVar(&sortBy, "sort", models.SortNewest, "newest, deadline, progress or raised")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of campaigns")
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived campaigns")
	return cmd
}

func receiptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <receipt-id>",
		Short: "Show a donation receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				r, err := e.Campaigns.GetReceipt(ctx, args[0])
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(r)
				}
				fmt.Printf("%s: %s TON to %s by %s at %s\n",
					r.ID, models.FormatTON(r.Amount), r.CampaignID, r.DonorID, r.Timestamp.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func receiptsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipts <donor-address>",
		Short: "List the live donation receipts of a donor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			donor, ok := ton.CanonicalID(args[0])
			if !ok {
				return fmt.Errorf("invalid address %q", args[0])
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				items, err := e.Campaigns.ListReceipts(ctx, donor)
				if err != nil {
					return err
				}
				if globalFlags.output == "json" {
					return printJSON(items)
				}
				for _, r := range items {
					fmt.Printf("%s %10s TON  %s  %s\n",
						r.ID, models.FormatTON(r.Amount), r.CampaignID, r.Timestamp.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func createCommand() *cobra.Command {
	var (
		title       string
		description string
		imageURL    string
		goal        string
		duration    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			goalNano, err := models.ParseTON(goal)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				res, err := e.Campaigns.Create(ctx, services.CreateCampaignInput{
					Goal:        goalNano,
					DeadlineAt:  time.Now().Add(duration),
					Title:       title,
					Description: description,
					ImageURL:    imageURL,
				}, nil)
				if err != nil {
					return err
				}
				if globalFlags.output != "json" && res.Outcome.Succeeded() {
					fmt.Printf("slug %s", res.Slug)
					if res.CampaignID != "" {
						fmt.Printf(" -> %s", res.CampaignID)
					}
					fmt.Println()
				}
				return printOutcome(res.Outcome)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "campaign title")
	cmd.Flags().StringVar(&description, "description", "", "campaign description, HTML allowed")
	cmd.Flags().StringVar(&imageURL, "image", "", "cover image URL")
	cmd.Flags().StringVar(&goal, "goal", "", "funding goal in TON")
	cmd.Flags().DurationVar(&duration, "duration", 7*24*time.Hour, "time until the deadline")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func donateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "donate <slug|title|id> <amount-ton>",
		Short: "Donate to an active campaign",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := models.ParseTON(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := resolve(ctx, e, args[0])
				if err != nil {
					return err
				}
				out, err := e.Campaigns.Donate(ctx, id, amount, nil)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
}

type campaignOperation func(s *services.CampaignService, ctx context.Context, id string, actorID *uuid.UUID) (*executor.Outcome, error)

func operationCommand(use, short string, op campaignOperation) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <slug|title|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := resolve(ctx, e, args[0])
				if err != nil {
					return err
				}
				out, err := op(e.Campaigns, ctx, id, nil)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
}

func finalizeCommand() *cobra.Command {
	return operationCommand("finalize", "Settle a campaign whose deadline has passed", (*services.CampaignService).Finalize)
}

func forceSucceedCommand() *cobra.Command {
	return operationCommand("force-succeed", "Mark a campaign succeeded before its deadline (owner only)", (*services.CampaignService).ForceSucceed)
}

func withdrawCommand() *cobra.Command {
	return operationCommand("withdraw", "Withdraw the funds of a succeeded campaign (owner only)", (*services.CampaignService).Withdraw)
}

func cancelCommand() *cobra.Command {
	return operationCommand("cancel", "Cancel an active campaign without donations (owner only)", (*services.CampaignService).Cancel)
}

func refundCommand() *cobra.Command {
	var campaign string
	cmd := &cobra.Command{
		Use:   "refund <receipt-id>",
		Short: "Refund a donation of a failed campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				var id string
				if campaign != "" {
					var err error
					if id, err = resolve(ctx, e, campaign); err != nil {
						return err
					}
				}
				out, err := e.Campaigns.Refund(ctx, args[0], id, nil)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign the receipt must belong to")
	return cmd
}

func archiveCommand(archived bool) *cobra.Command {
	use, short := "archive", "Hide a campaign from listings"
	if !archived {
		use, short = "unarchive", "Show an archived campaign in listings again"
	}
	return &cobra.Command{
		Use:   use + " <slug|title|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := resolve(ctx, e, args[0])
				if err != nil {
					return err
				}
				if err := e.Campaigns.SetArchived(ctx, id, archived, nil); err != nil {
					return err
				}
				fmt.Printf("%s %sd\n", id, use)
				return nil
			})
		},
	}
}

func nameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "name <address> [display-name]",
		Short: "Label an owner address in listings, or clear the label",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, ok := ton.CanonicalID(args[0])
			if !ok {
				return fmt.Errorf("invalid address %q", args[0])
			}
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				if err := e.Campaigns.SetDisplayName(ctx, addr, name, nil); err != nil {
					return err
				}
				if strings.TrimSpace(name) == "" {
					fmt.Printf("%s name cleared\n", addr)
					return nil
				}
				fmt.Printf("%s named %q\n", addr, strings.TrimSpace(name))
				return nil
			})
		},
	}
}

func tokenCommand() *cobra.Command {
	var (
		name string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToLower(role)
			if !rbac.IsValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg := config.Load()
			if ttl <= 0 {
				ttl = cfg.JWTExpiration
			}
			id := uuid.New()
			token, err := auth.GenerateJWT(cfg.JWTSecret, id, name, role, ttl)
			if err != nil {
				return err
			}
			if globalFlags.output == "json" {
				return printJSON(map[string]any{"operator_id": id, "name": name, "role": role, "token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "operator display name")
	cmd.Flags().StringVar(&role, "role", rbac.RoleViewer, "viewer, operator or owner")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to JWT_EXPIRATION_HOURS")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
