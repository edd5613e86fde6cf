package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/social"
)

var (
	demoUsers       = []string{"Ed Mauget", "Molly Mauget", "Pixie Mauget", "Nellie Mauget"}
	demoFriendships = []social.Friendship{
		{A: "Ed Mauget", B: "Molly Mauget"},
		{A: "Ed Mauget", B: "Pixie Mauget"},
		{A: "Ed Mauget", B: "Nellie Mauget"},
		{A: "Molly Mauget", B: "Pixie Mauget"},
	}
)

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the friends scenario against an embedded store",
		Long: `Opens the store, creates four users and their friendships in one
transaction, prints each user's friends, then removes everything again.
The store is closed on every exit path, including an interrupt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := graphdb.Open(a.cfg.Store.Path, storeOptions(a)...)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					a.logger.Error("Closing store failed", zap.Error(err))
				}
			}()
			return runDemo(cmd, social.NewDirectory(store, a.logger))
		},
	}
	cmd.Flags().String("store.path", "", "store directory; an explicit empty value opens an in-memory store")
	return cmd
}

func storeOptions(a *app) []graphdb.Option {
	return []graphdb.Option{
		graphdb.WithLogger(a.logger),
		graphdb.WithSync(a.cfg.Store.Sync),
		graphdb.WithLookupCache(a.cfg.Store.LookupCacheSize),
	}
}

func runDemo(cmd *cobra.Command, dir *social.Directory) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := dir.Populate(ctx, demoUsers, demoFriendships); err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	for _, name := range demoUsers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := printFriends(out, dir, name); err != nil {
			return err
		}
	}
	n, err := dir.RemoveAll(ctx)
	if err != nil {
		return fmt.Errorf("remove users: %w", err)
	}
	fmt.Fprintf(out, "Removed %d users\n", n)
	return nil
}

func printFriends(out io.Writer, dir *social.Directory, name string) error {
	fmt.Fprintf(out, "Friends of %s:\n", name)
	friends, found, err := dir.FriendsOf(name)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(out, "\tUser %s not found\n", name)
		return nil
	}
	for _, f := range friends {
		fmt.Fprintf(out, "\t%s knows %s\n", name, f.Name)
	}
	return nil
}
