package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/session"
	"github.com/aristath/agrimarket/internal/utils"
)

type watchOptions struct {
	kinds    string
	all      bool
	duration time.Duration
	updates  int
}

// watchUpdate is one line of watch output
type watchUpdate struct {
	Table    domain.Table `json:"table" yaml:"table"`
	Source   string       `json:"source" yaml:"source"`
	Version  uint64       `json:"version" yaml:"version"`
	Rows     int          `json:"rows" yaml:"rows"`
	Degraded bool         `json:"degraded" yaml:"degraded"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <table>",
		Short: "Mount a table like a screen and print every update",
		Long: `Mount a table the way a screen does: show the cached rows, subscribe to
the change feed and print a line for every refreshed view.

Rows are scoped to the signed-in user unless --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, opts, cmd, domain.Table(args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.kinds, "kinds", "", "change kinds to follow (INSERT,UPDATE,DELETE)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "watch every row, not only the user's")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.updates, "updates", 0, "stop after this many server updates (0 for no limit)")
	return cmd
}

func runWatch(rootOpts *RootOptions, opts *watchOptions, cmd *cobra.Command, table domain.Table) error {
	f := rootOpts.formatter(cmd)

	spec := session.ScreenSpec{Name: "watch:" + string(table), Table: table}
	for _, k := range utils.ParseCSVUpper(opts.kinds) {
		spec.Kinds = append(spec.Kinds, domain.ChangeKind(k))
	}
	if opts.all {
		spec.Filter = domain.Filter{}
	}

	c, err := rootOpts.client(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	screen, err := c.Session.Mount(ctx, spec)
	if err != nil {
		return f.Fail("failed to mount "+string(table), err)
	}
	defer screen.Unmount()

	report := func() error {
		u := watchUpdate{
			Table:    table,
			Source:   string(screen.Source()),
			Version:  screen.Version(),
			Rows:     len(screen.Rows()),
			Degraded: screen.Degraded(),
		}
		return f.Success(u, func(w io.Writer) {
			state := ""
			if u.Degraded {
				state = " (offline)"
			}
			fmt.Fprintf(w, "%s v%d %s: %d rows%s\n", u.Table, u.Version, u.Source, u.Rows, state)
		})
	}

	seen := screen.Version()
	changed := screen.Changed()
	if err := report(); err != nil {
		return err
	}
	if screen.Degraded() {
		return nil
	}

	updates := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			changed = screen.Changed()
			v := screen.Version()
			if v == seen {
				continue
			}
			seen = v
			if err := report(); err != nil {
				return err
			}
			updates++
			if opts.updates > 0 && updates >= opts.updates {
				return nil
			}
		}
	}
}
