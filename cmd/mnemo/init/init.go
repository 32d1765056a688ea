// Package initcmder provides the init command for initializing a local .mnemo
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/config"
)

const (
	dirName = ".mnemo"
)

const initLongDesc string = `Initialize a new .mnemo/ directory in the current working directory.

Creates a local .mnemo/ directory that takes precedence over the default
~/.mnemo/ directory for the memory database, the MEMORY.md digest,
configuration and session state.

This is useful for keeping separate memories per project.

Use --preset to write a starting config.toml:
  offline     keyword search, no language model
  anthropic   Claude for extraction and review
  openai      OpenAI for extraction, review and embedding search
  ollama      local models for extraction, review and vector search

Examples:
  mnemo init
  mnemo init --preset ollama`

const initShortDesc string = "Initialize a local .mnemo/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write a preset config.toml")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .mnemo directory: %w", err)
		}
		fmt.Printf("Initialized .mnemo directory: %s\n", dir)
	}

	if preset == "" {
		return nil
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s preset to %s\n", preset, filepath.Join(dir, "config.toml"))
	return nil
}
