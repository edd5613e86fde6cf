package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME",
			Short: "Create a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				u, err := a.client().CreateUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user: %s (%s)\n", u.Name, u.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show NAME",
			Short: "Show a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				u, found, err := a.client().User(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "User %s not found\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, u.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List users in creation order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				users, err := a.client().Users(cmd.Context())
				if err != nil {
					return err
				}
				for _, u := range users {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, u.Name)
				}
				return nil
			},
		},
	)
	return cmd
}

func newBefriendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "befriend A B",
		Short: "Make two users friends of each other",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Befriend(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s and %s are friends\n", args[0], args[1])
			return nil
		},
	}
}

func newFriendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "friends NAME",
		Short: "List a user's friends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := cmd.OutOrStdout()
			friends, found, err := a.client().Friends(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Friends of %s:\n", name)
			if !found {
				fmt.Fprintf(out, "\tUser %s not found\n", name)
				return nil
			}
			for _, f := range friends {
				fmt.Fprintf(out, "\t%s knows %s\n", name, f.Name)
			}
			return nil
		},
	}
}

func newWipeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Remove every user, their relationships and the name index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.client().RemoveAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d users\n", n)
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "nodes\t%s\n", humanize.Comma(int64(st.Nodes)))
			fmt.Fprintf(w, "relationships\t%s\n", humanize.Comma(int64(st.Relationships)))
			fmt.Fprintf(w, "properties\t%s\n", humanize.Comma(int64(st.Properties)))
			fmt.Fprintf(w, "index entries\t%s\n", humanize.Comma(int64(st.IndexEntries)))
			fmt.Fprintf(w, "indexes\t%s\n", strings.Join(st.Indexes, ", "))
			fmt.Fprintf(w, "commits\t%s\n", humanize.Comma(int64(st.Ops.Commits)))
			fmt.Fprintf(w, "rollbacks\t%s\n", humanize.Comma(int64(st.Ops.Rollbacks)))
			if st.Log.Path != "" {
				fmt.Fprintf(w, "commit log\t%s (%s, lsn %d)\n", st.Log.Path, humanize.IBytes(uint64(st.Log.Bytes)), st.Log.LSN)
			}
			return w.Flush()
		},
	}
}

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the daemon's commit log as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			before, err := a.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.client().Compact(cmd.Context()); err != nil {
				return err
			}
			after, err := a.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compacted commit log: %s -> %s\n",
				humanize.IBytes(uint64(before.Log.Bytes)), humanize.IBytes(uint64(after.Log.Bytes)))
			return nil
		},
	}
}
