package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/gateway"
	"github.com/soyeahso/agentgen/internal/hooks"
	"github.com/soyeahso/agentgen/internal/planner"
)

func newServeCmd() *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plan/build/generate HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(c *config.Config) {
				if host != "" {
					c.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					c.Server.Port = port
				}
			})
			if err != nil {
				return err
			}

			if watch {
				go autorestart.RestartOnChange()
				log.Info().Msg("restarting when the executable changes")
			}

			hm := hooks.NewManager(log)
			opts := []gateway.ServerOption{
				gateway.WithHooks(hm),
				gateway.WithGenerator(newPipeline(cfg)),
			}

			client, err := defaultClient(cfg)
			if err != nil {
				log.Warn().Err(err).Msg("no completion provider; /plan will fail until credentials are configured")
			}
			planOpts := plannerOptions(cfg)
			planOpts.Hooks = hm
			opts = append(opts, gateway.WithPlanner(planner.New(client, planOpts, log)))

			buildOpts := []build.Option{build.WithModel(cfg.Model), build.WithHooks(hm)}
			if cfg.Build.History {
				db, history, err := openHistory()
				if err != nil {
					return err
				}
				defer db.Close()
				buildOpts = append(buildOpts, build.WithHistory(history))
				opts = append(opts, gateway.WithHistory(history))
			}
			opts = append(opts, gateway.WithBuilder(build.NewManager(cfg.Build.Base, log, buildOpts...)))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return gateway.New(cfg, log, opts...).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override server host")
	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().BoolVar(&watch, "watch", false, "restart when the agentgen binary is rebuilt")

	return cmd
}
