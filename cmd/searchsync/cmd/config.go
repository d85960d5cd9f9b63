package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchsync/configs"
	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage project and user configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/searchsync/config.yaml)
  3. Project config (.searchsync.yaml)
  4. Project .env file
  5. Environment variables (SEARCHSYNC_*)`,
		Example: `  # Create .searchsync.yaml in the project directory
  searchsync config init

  # Create the user config instead
  searchsync config init --user

  # Show effective configuration
  searchsync config show

  # Print user config file path
  searchsync config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var user, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, user, force)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (user config is backed up first)")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, user, force bool) error {
	out := output.New(cmd.OutOrStdout())

	var path string
	if user {
		path = config.GetUserConfigPath()
	} else {
		dir := configDir
		if dir == "" {
			dir = "."
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve project directory: %w", err)
		}
		path = filepath.Join(abs, config.ProjectFileYAML)
	}

	exists := config.ProjectFile(filepath.Dir(path)) != ""
	if user {
		exists = config.UserConfigExists()
	}

	if exists && !force {
		out.Warning("Configuration already exists")
		out.Statusf("", "Location: %s", path)
		out.Status("", "Use --force to overwrite")
		return nil
	}

	var backup string
	if exists && user {
		b, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		backup = b
	}

	template := configs.ProjectConfigTemplate
	if user {
		template = configs.UserConfigTemplate
	}
	if err := writeTemplate(path, template); err != nil {
		return err
	}

	out.Success("Wrote configuration")
	out.Statusf("", "Location: %s", path)
	if backup != "" {
		out.Statusf("", "Backup: %s", backup)
	}
	if user {
		return nil
	}

	// Example types only when the project has none yet.
	typesPath := filepath.Join(filepath.Dir(path), config.NewConfig().Index.TypesFile)
	if _, err := os.Stat(typesPath); os.IsNotExist(err) {
		if err := writeTemplate(typesPath, configs.TypesTemplate); err != nil {
			return err
		}
		out.Statusf("", "Types: %s", typesPath)
	}

	out.Newline()
	out.Status("", "Next steps:")
	out.Status("", "  1. Set index.alias, index.type and the source section")
	out.Status("", "  2. Run 'searchsync mapping' to check the compiled mapping")
	out.Status("", "  3. Run 'searchsync reindex' to build the index")
	return nil
}

func writeTemplate(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to create "+filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "failed to write "+path, err)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var cfg *config.Config
	switch source {
	case "defaults":
		cfg = config.NewConfig()
	case "merged", "":
		loaded, _, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	default:
		return fmt.Errorf("unknown config source %q (use merged or defaults)", source)
	}

	if jsonOutput {
		return out.JSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out.Raw(data)
	return nil
}
