package trampoline

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manifest-network/trampoline/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Aliases: []string{"s"},
	Short:   "Manage the molecule schemas of the project",
}

var schemaNewCmd = &cobra.Command{
	Use:   "new [name] [definition]",
	Short: "Create a schema, building it when a definition is given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		path, err := schema.New(p, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema %s at %s\n", args[0], path)
		return nil
	},
}

var schemaBuildCmd = &cobra.Command{
	Use:   "build [name]",
	Short: "Generate the Go bindings of a schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		out, err := schema.Build(p, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bindings written to %s\n", out)
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaNewCmd, schemaBuildCmd)
}
