package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentra/internal/config"
	output "sentra/pkg/io_utils"
	"sentra/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentra",
		Short: "AI-assisted security testing orchestrator",
		Long:  `Sentra resolves natural-language requests into policy-gated invocations of reconnaissance tools and maintains a knowledge graph of what they find`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config", "Configuration directory path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCheckpointCommand())
	rootCmd.AddCommand(newSuggestCommand())
	rootCmd.AddCommand(newCleanCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithFields(logger.Fields{"signal": sig.String()}).Info("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}

func newRunCommand() *cobra.Command {
	var target string
	var wait time.Duration

	runCmd := &cobra.Command{
		Use:     "run [request]",
		Aliases: []string{"ask"},
		Short:   "Resolve and execute a natural-language request",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := NewApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signalContext()
			defer cancel()
			app.StartBackground(ctx)

			text := args[0]
			outcome, err := app.Coordinator.HandleRequest(ctx, text, target)
			if err != nil {
				return err
			}

			switch {
			case outcome.ApprovalID != "":
				fmt.Printf("approval required (%s): confirm through the approvals API\n", outcome.ApprovalID)
			case outcome.ExecutionID != "":
				fmt.Printf("execution started: %s\n", outcome.ExecutionID)
				waitForRecord(ctx, app, outcome.ExecutionID, wait)
			default:
				fmt.Println(outcome.Message)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&target, "target", "t", "", "Target hint when the request does not name one")
	runCmd.Flags().DurationVar(&wait, "wait", 30*time.Minute, "How long to wait for the invocation to finish")
	return runCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := NewApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signalContext()
			defer cancel()
			app.StartBackground(ctx)

			logger.Infof("Serving API on %s", app.Config.ListenAddr)
			return app.Router().Run(app.Config.ListenAddr)
		},
	}
}

func newHistoryCommand() *cobra.Command {
	var tool string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := NewApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Store.ListExecutions(tool, 50)
			if err != nil {
				return err
			}

			for _, record := range records {
				fmt.Printf("%s  %-24s %-20s %-8s %-12s entities=%d\n",
					time.UnixMilli(record.StartedAt).Format(time.RFC3339),
					record.ToolID, record.Target, record.Status, record.ParseStatus,
					record.EntitiesCreated)
			}
			if len(records) == 0 {
				fmt.Println("no executions recorded")
			}
			return nil
		},
	}

	historyCmd.Flags().StringVar(&tool, "tool", "", "Filter by tool id")
	return historyCmd
}

func newCheckpointCommand() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint [save|restore] <path>",
		Short: "Save or restore a knowledge store checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := NewApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			switch args[0] {
			case "save":
				if err := app.Store.Checkpoint(args[1]); err != nil {
					return err
				}
				fmt.Printf("checkpoint written to %s\n", args[1])
			case "restore":
				if err := app.Store.Restore(args[1]); err != nil {
					return err
				}
				fmt.Printf("knowledge store restored from %s\n", args[1])
			default:
				return fmt.Errorf("unknown checkpoint action %q", args[0])
			}
			return nil
		},
	}
	return checkpointCmd
}

func newCleanCommand() *cobra.Command {
	var secure bool

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete session logs under the configured temp root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			cleaner, err := output.NewSecureCleaner(cfg.SessionRoot)
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(cfg.SessionRoot)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("nothing to clean")
					return nil
				}
				return err
			}

			removed := 0
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				sessionDir := filepath.Join(cfg.SessionRoot, entry.Name())
				if secure {
					for _, name := range []string{"stdout.log", "stderr.log", "combined.log"} {
						_ = cleaner.Delete(filepath.Join(sessionDir, name), true)
					}
				}
				if err := cleaner.DeleteTree(sessionDir); err != nil {
					logger.Errorf("Failed to remove %s: %v", sessionDir, err)
					continue
				}
				removed++
			}
			fmt.Printf("removed %d session directories\n", removed)
			return nil
		},
	}

	cleanCmd.Flags().BoolVar(&secure, "secure", false, "Overwrite log contents before deleting")
	return cleanCmd
}

func newSuggestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Propose next steps from the knowledge graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := NewApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			suggestions, err := app.Recommender.Suggest(10)
			if err != nil {
				return err
			}
			if len(suggestions) == 0 {
				fmt.Println("nothing to suggest yet, run a discovery first")
				return nil
			}
			for _, s := range suggestions {
				marker := " "
				if s.NeedsApproval {
					marker = "!"
				}
				fmt.Printf("%s [%3d] %-16s %-28s %s\n", marker, s.Priority, s.Kind, s.Target, s.Rationale)
			}
			return nil
		},
	}
}
