package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/client"
	"github.com/dreamware/kith/internal/config"
	"github.com/dreamware/kith/internal/observability"
)

// app carries what PersistentPreRunE loads to the subcommands.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Client.Addr, a.cfg.Client.Timeout)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kith",
		Short:         "Work with kith graph stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(a.cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				observability.Sync(a.logger)
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./kith.yaml)")
	root.PersistentFlags().String("client.addr", "", "kithd address")
	root.PersistentFlags().String("logger.level", "", "log level")

	root.AddCommand(
		newDemoCmd(a),
		newUserCmd(a),
		newBefriendCmd(a),
		newFriendsCmd(a),
		newWipeCmd(a),
		newStatsCmd(a),
		newCompactCmd(a),
	)
	return root
}
