package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"freqgate/internal/config"

	"github.com/spf13/cobra"
)

// InitOptions holds init command options.
type InitOptions struct {
	Force bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize freqgate configuration",
		Long:  "Initialize the freqgate configuration directory and write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit writes the default configuration to the config directory.
func RunInit(opts *InitOptions) error {
	configDir, err := config.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("get config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	dirs := []string{
		configDir,
		filepath.Join(configDir, "logs"),
		filepath.Join(configDir, "data"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Load with an empty path yields the built-in defaults.
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("build default config: %w", err)
	}

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	fmt.Println("Edit llm.endpoint and llm.api_key before starting the server.")
	return nil
}
