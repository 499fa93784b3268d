package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/planner"
)

func newPlanCmd() *cobra.Command {
	var (
		target      string
		catalogPath string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "plan <use-case>",
		Short: "Ask the completion provider for a build plan",
		Long: "Produces a build plan: the selected target, the build tasks and a preview of the project tree.\n" +
			"Capabilities already offered by a catalog component are reused instead of generated.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			useCase, err := readRequirement(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			catalog, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			client, err := defaultClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			p := planner.New(client, plannerOptions(cfg), log)
			plan, err := p.Plan(ctx, planner.Request{
				UseCase:         useCase,
				PreferredTarget: target,
				Catalog:         catalog,
			})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := writeOutput(output, string(data)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d tasks)\n", output, plan.SelectedTarget, len(plan.BuildTasks))
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "preferred target; the provider's choice is used when empty")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "JSON file describing existing components")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan to this file instead of stdout")

	return cmd
}

func plannerOptions(cfg config.Config) planner.Options {
	return planner.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		BuildBase:   cfg.Build.Base,
	}
}

func loadCatalog(path string) (planner.Catalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var catalog planner.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, &config.ConfigError{Message: fmt.Sprintf("catalog %s: %v", path, err)}
	}
	return catalog, nil
}
