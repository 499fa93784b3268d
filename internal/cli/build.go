package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/hooks"
)

func newBuildCmd() *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "build <plan.json|->",
		Short: "Execute a build plan",
		Long:  "Runs every build task of the plan concurrently and merges the results under <base>/<target>.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlan(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(func(c *config.Config) {
				if base != "" {
					c.Build.Base = base
				}
			})
			if err != nil {
				return err
			}

			opts, closeHistory, err := buildOptions(cfg)
			if err != nil {
				return err
			}
			defer closeHistory()

			errOut := cmd.ErrOrStderr()
			hm := hooks.NewManager(log)
			hm.On(hooks.EventTaskDone, "cli-progress", func(_ context.Context, p hooks.Payload) error {
				_, err := fmt.Fprintf(errOut, "  done   %s/%s\n", p.Data["kind"], p.Data["name"])
				return err
			})
			hm.On(hooks.EventTaskFailed, "cli-progress", func(_ context.Context, p hooks.Payload) error {
				_, err := fmt.Fprintf(errOut, "  failed %s/%s: %s\n", p.Data["kind"], p.Data["name"], p.Data["error"])
				return err
			})
			opts = append(opts, build.WithHooks(hm))

			ctx, cancel := commandContext(cmd)
			defer cancel()

			mgr := build.NewManager(cfg.Build.Base, log, opts...)
			summary, err := mgr.Build(ctx, plan)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Built %s in %s (run %s)\n", summary.Target, summary.Output, summary.RunID)
			for _, f := range summary.Tree {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "output root (default from config build.base)")
	return cmd
}

func readPlan(stdin io.Reader, path string) (*build.Plan, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan build.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, &build.BuildTaskError{Name: "plan", Kind: "json", Err: err}
	}
	return &plan, nil
}
