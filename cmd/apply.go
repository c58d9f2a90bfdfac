package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/executor"
	"github.com/antonkk/formpilot/internal/llmclient"
	"github.com/antonkk/formpilot/internal/memory"
	"github.com/antonkk/formpilot/internal/observability"
	"github.com/antonkk/formpilot/internal/profile"
	"github.com/antonkk/formpilot/internal/repair"
	"github.com/antonkk/formpilot/internal/resolver"
	"github.com/antonkk/formpilot/internal/scanner"
	"github.com/antonkk/formpilot/internal/session"
	"github.com/antonkk/formpilot/internal/validator"
)

// newApplyCmd creates the `apply` command: fill one or more application
// forms. The engine fills and verifies; submission stays with the operator.
func newApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply [urls...]",
		Short: "Fill the application forms at the given URLs",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("profile.path", cmd.Flags().Lookup("profile")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("engine.session_concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if cfg.Profile.Path == "" {
				return fmt.Errorf("a profile is required; pass --profile or set profile.path")
			}
			prof, err := profile.Load(cfg.Profile.Path)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var reasoner llmclient.Reasoner
			if cfg.LLM.APIKey != "" {
				gem, err := llmclient.NewGemini(ctx, cfg.LLM, logger)
				if err != nil {
					return err
				}
				reasoner = gem
			} else {
				logger.Warn("No reasoning-service API key configured; AI strategy disabled.")
			}

			var prompt resolver.PromptFunc
			if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
				prompt = stdinPrompt(cmd)
			}

			// One browser per session; the learning store and the
			// rate-limited reasoner are the shared pieces.
			runSession := func(ctx context.Context, url string) (*schemas.SessionReport, error) {
				manager, err := browser.NewManager(ctx, cfg.Browser, logger)
				if err != nil {
					return nil, err
				}
				defer manager.Close()

				auto := manager.Automator()
				casc := resolver.New(cfg.Resolver, prof, store, reasoner, prompt, logger)
				exec := executor.New(auto, cfg.Executor, logger)
				valid := validator.New(auto, logger)
				rep := repair.New(cfg.Repair, auto, exec, valid, reasoner, casc, store, logger)
				scan := scanner.New(auto, logger)
				ctrl := session.New(cfg.Engine, auto, scan, casc, exec, valid, rep, logger)
				return ctrl.Run(ctx, url)
			}

			runner := session.NewRunner(cfg.Engine.SessionConcurrency, runSession, logger)
			reports := runner.RunAll(ctx, args)

			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			for _, report := range reports {
				if report.Status != schemas.SessionDone {
					logger.Warn("Form needs attention before submission.",
						zap.String("url", report.URL),
						zap.Int("failed", report.FailedCount))
				}
			}
			return nil
		},
	}

	applyCmd.Flags().StringP("profile", "p", "", "path to the profile JSON file")
	applyCmd.Flags().Bool("headless", true, "run the browser headless")
	applyCmd.Flags().Int("concurrency", 0, "parallel form sessions (0 uses the configured default)")
	applyCmd.Flags().Bool("interactive", false, "prompt on stdin for fields nothing else can answer")
	return applyCmd
}

// openStore builds the learning store over the configured backend.
func openStore(ctx context.Context, logger *zap.Logger) (*memory.Store, error) {
	var backend memory.Backend
	switch cfg.Memory.Backend {
	case "postgres":
		pg, err := memory.NewPostgresBackend(ctx, cfg.Memory.PostgresDSN)
		if err != nil {
			return nil, err
		}
		backend = pg
	case "memory":
		backend = memory.NewMemoryBackend()
	default:
		path := cfg.Memory.SQLitePath
		if path == "" {
			p, err := config.DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		sq, err := memory.NewSQLiteBackend(ctx, path)
		if err != nil {
			return nil, err
		}
		backend = sq
	}
	return memory.NewStore(ctx, backend, logger)
}

// stdinPrompt asks the operator for an answer on the command's input stream.
func stdinPrompt(cmd *cobra.Command) resolver.PromptFunc {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(ctx context.Context, field schemas.Field) (string, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "\n? %s", field.Label)
		if len(field.Options) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " %v", field.Options)
		}
		fmt.Fprint(cmd.OutOrStdout(), "\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
