package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "Retrieval-augmented writing copilot backend",
		Long: `scribe stores a writer's documents as embeddings, retrieves relevant passages
for new writing and asks a language model for suggestions, feedback and plot
continuity checks.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(ingestCommand())
	rootCmd.AddCommand(importCommand())
	rootCmd.AddCommand(classifyCommand())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("scribe failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
