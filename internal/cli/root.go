// Package cli implements marketctl, the command line client of the
// marketplace: placing orders, ledger summaries, watching tables and
// inspecting the local cache.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/agrimarket/internal/config"
	"github.com/aristath/agrimarket/internal/di"
	"github.com/aristath/agrimarket/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	BackendURL string
	UserID     string
	DataDir    string

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of marketctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Marketplace client",
		Long:  "Place orders, summarise the personal ledger and watch marketplace tables in real time.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.BackendURL, "backend", "", "backend URL (overrides MARKET_BACKEND_URL)")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "signed-in user (overrides MARKET_USER_ID)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "local cache directory (overrides MARKET_DATA_DIR)")

	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}

// load reads the environment and applies the flag overrides
func (o *RootOptions) load() error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.BackendURL != "" {
		cfg.BackendURL = o.BackendURL
	}
	if o.UserID != "" {
		cfg.UserID = o.UserID
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.cfg = cfg
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger logs to stderr, and only in verbose mode
func (o *RootOptions) logger(w io.Writer) zerolog.Logger {
	if !o.Verbose {
		return zerolog.Nop()
	}
	return logger.New(logger.Config{Level: "debug", Pretty: true, Output: w})
}

// client wires a marketplace client for the command
func (o *RootOptions) client(cmd *cobra.Command) (*di.ClientContainer, error) {
	if o.cfg.UserID == "" {
		return nil, WrapExitError(ExitCommandError, "no user", fmt.Errorf("set --user or MARKET_USER_ID"))
	}
	c, err := di.WireClient(o.cfg, o.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start client", err)
	}
	return c, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
