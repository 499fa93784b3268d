package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/pipeline"
	"github.com/soyeahso/agentgen/internal/visualize"
)

func newGenerateCmd() *cobra.Command {
	var (
		target      string
		output      string
		wrap        bool
		useLLM      bool
		provider    string
		model       string
		temperature float64
		maxTokens   int
		diagram     string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "generate <requirement|->",
		Short: "Generate workflow code from a plain-language requirement",
		Long: "Parses the requirement into agents, tasks and dependencies and renders it for the chosen target.\n" +
			"Pass - to read the requirement from stdin.",
		Example: `  agentgen generate "Research the market. Then write a report." -t crewai
  agentgen generate - -t langgraph --use-llm --provider openai < requirement.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement, err := readRequirement(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req := pipeline.Request{
				Requirement:   requirement,
				Target:        target,
				Provider:      cfg.Provider,
				Model:         cfg.Model,
				Temperature:   cfg.Temperature,
				MaxTokens:     cfg.MaxTokens,
				WrapAsService: wrap,
				UseLLM:        useLLM,
			}
			flags := cmd.Flags()
			if flags.Changed("provider") {
				req.Provider = provider
			}
			if flags.Changed("model") {
				req.Model = model
			}
			if flags.Changed("temperature") {
				req.Temperature = temperature
			}
			if flags.Changed("max-tokens") {
				req.MaxTokens = maxTokens
			}

			p := newPipeline(cfg)
			out := cmd.OutOrStdout()

			if dryRun {
				_, _, text, err := p.Prepare(req)
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := p.Generate(ctx, req)
			if err != nil {
				return err
			}
			if res.Usage != nil {
				log.Info().Msg("completion usage: " + res.Usage.String())
			}

			var chart string
			if diagram != "" {
				chart, err = visualize.Render(res.Workflow, diagram)
				if err != nil {
					return err
				}
			}

			if output == "" {
				out.Write(res.Artifact.Content)
				if chart != "" {
					fmt.Fprint(cmd.ErrOrStderr(), chart)
				}
				return nil
			}

			if err := writeOutput(output, string(res.Artifact.Content)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", output)
			if chart != "" {
				chartPath := strings.TrimSuffix(output, filepath.Ext(output)) + diagramExt(diagram)
				if err := writeOutput(chartPath, chart); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", chartPath)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&target, "target", "t", "", "output target (see agentgen targets)")
	f.StringVarP(&output, "output", "o", "", "write the artifact to this file instead of stdout")
	f.BoolVar(&wrap, "wrap-service", false, "append an HTTP service wrapper to Python artifacts")
	f.BoolVar(&useLLM, "use-llm", false, "ask the completion provider to write the code")
	f.StringVar(&provider, "provider", "", "completion provider (watsonx, openai)")
	f.StringVar(&model, "model", "", "model identifier")
	f.Float64Var(&temperature, "temperature", 0, "sampling temperature")
	f.IntVar(&maxTokens, "max-tokens", 0, "completion token limit")
	f.StringVar(&diagram, "diagram", "", "also render the task graph (mermaid, dot)")
	f.BoolVar(&dryRun, "dry-run", false, "print the rendered prompt and exit")
	cmd.MarkFlagRequired("target")

	return cmd
}

// readRequirement joins args, or reads stdin when the only arg is "-".
func readRequirement(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading requirement from stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func diagramExt(format string) string {
	if format == visualize.FormatDOT {
		return ".dot"
	}
	return ".mmd"
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
