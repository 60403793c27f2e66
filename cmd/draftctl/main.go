// Command draftctl inspects and clears drafts kept in the configured store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"nurseos/internal/app"
	"nurseos/internal/config"
	"nurseos/internal/draft"
	"nurseos/internal/logging"
	"nurseos/internal/state"

	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	out        io.Writer
	// open is replaced in tests.
	open func(ctx context.Context, configPath string) (*state.Adapter, app.Prefixes, error)
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	c := &cli{out: os.Stdout, open: openConfigured}
	if err := newRootCmd(c).Execute(); err != nil {
		os.Exit(1)
	}
}

func openConfigured(ctx context.Context, configPath string) (*state.Adapter, app.Prefixes, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, app.Prefixes{}, err
	}
	log := logging.New(config.LoggingConfig{Level: "warn"})
	primary, err := app.OpenStore(ctx, cfg.State, log)
	if err != nil {
		return nil, app.Prefixes{}, err
	}
	if primary == nil {
		return nil, app.Prefixes{}, fmt.Errorf("state driver %q keeps nothing between runs", cfg.State.Driver)
	}
	return state.NewAdapter(primary, log, nil), app.PrefixesFor(cfg.State), nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "draftctl",
		Short:        "Inspect and clear stored drafts",
		SilenceUsage: true,
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "configs/config.yaml", "path to config file")
	root.AddCommand(c.listCmd(), c.showCmd(), c.clearCmd())
	return root
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List draft keys, handover drafts by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, prefixes, err := c.open(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			prefix := prefixes.Handover
			if len(args) == 1 {
				prefix = args[0]
			}
			keys := store.Keys(cmd.Context(), prefix)
			for _, key := range keys {
				if dc, ok := draft.ParseKey(prefix, key); ok {
					fmt.Fprintf(c.out, "%s\tentity=%s\tsub=%s\n", key, dc.EntityID, dc.SubContext)
					continue
				}
				fmt.Fprintln(c.out, key)
			}
			fmt.Fprintf(c.out, "%d key(s)\n", len(keys))
			return nil
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.open(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			raw, ok := store.GetItem(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no value stored under %s", args[0])
			}
			fmt.Fprintln(c.out, raw)
			return nil
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear <key>",
		Short: "Remove a draft, or every key under a prefix with --all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.open(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			target := args[0]
			if !all {
				store.RemoveItem(cmd.Context(), target)
				fmt.Fprintf(c.out, "cleared %s\n", target)
				return nil
			}
			if strings.TrimSpace(target) == "" {
				return errors.New("refusing to clear an empty prefix")
			}
			keys := store.Keys(cmd.Context(), target)
			for _, key := range keys {
				store.RemoveItem(cmd.Context(), key)
			}
			fmt.Fprintf(c.out, "cleared %d key(s) under %s\n", len(keys), target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "treat the argument as a prefix and clear every key under it")
	return cmd
}
