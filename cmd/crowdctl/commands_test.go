package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"owner token", []string{"--name", "alice", "--role", "owner"}, false},
		{"role is case-insensitive", []string{"--name", "bob", "--role", "Operator"}, false},
		{"unknown role", []string{"--name", "eve", "--role", "admin"}, true},
		{"name required", []string{"--role", "viewer"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tokenCommand()
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"donate needs an amount", donateCommand(), []string{"save-the-bees"}},
		{"finalize needs a campaign", finalizeCommand(), nil},
		{"refund takes one receipt", refundCommand(), []string{"0:01", "0:02"}},
		{"name needs an address", nameCommand(), nil},
		{"receipts needs a donor", receiptsCommand(), nil},
		{"name takes one label", nameCommand(), []string{"0:01", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cmd.Args(tt.cmd, tt.args))
		})
	}
}

func TestAddressCommandsRejectBadAddress(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"name", nameCommand(), []string{"not-an-address", "Alice"}},
		{"receipts", receiptsCommand(), []string{"not-an-address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cmd.SetArgs(tt.args)
			err := tt.cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid address")
		})
	}
}
