package cmd

import (
	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
)

func newMappingCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "mapping [type]",
		Short: "Print the compiled mapping for a type",
		Long: `Compile the field declarations of a type into the mapping document sent
to the backend and print it as JSON.

Without an argument the configured index.type is compiled.`,
		Example: `  searchsync mapping
  searchsync mapping product
  searchsync mapping --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMapping(cmd, args, list)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List the declared types instead")
	return cmd
}

func runMapping(cmd *cobra.Command, args []string, list bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	compiler, err := loadCompiler(cfg, dir)
	if err != nil {
		return err
	}

	if list {
		out.List("Types:", compiler.Registry().Names())
		return nil
	}

	name := cfg.Index.Type
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return serrors.ConfigError("no type given and index.type is not set", nil).
			WithSuggestion("Pass a type name, or run 'searchsync mapping --list'")
	}

	mapping, err := compiler.Compile(name)
	if err != nil {
		return err
	}
	data, err := mapping.Indent()
	if err != nil {
		return err
	}
	out.Raw(data)
	return nil
}
