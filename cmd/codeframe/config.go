package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frankbria/codeframe-sub011/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Prints the effective configuration after merging defaults, the user
config, the project config, and environment variables. Secrets are redacted.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("config files:")
	fmt.Printf("  user:    %s\n", existsNote(config.GetUserConfigPath()))
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	fmt.Printf("  project: %s\n", existsNote(filepath.Join(cwd, ".codeframe", "config.yaml")))

	if cfg.Anthropic.APIKey != "" {
		cfg.Anthropic.APIKey = "****" + tail(cfg.Anthropic.APIKey, 4)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	bold.Println("\nresolved:")
	fmt.Print(string(out))
	return nil
}

func existsNote(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path + " (absent)"
	}
	return path
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
