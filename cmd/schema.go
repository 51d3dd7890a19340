package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/wdhistory/store"
	"github.com/spf13/cobra"
)

// SchemaMain is wrapped by NewSchemaCommand and only exported for testing purposes.
var SchemaMain *store.SchemaMain

// NewSchemaCommand returns a new cobra command wrapping SchemaMain.
func NewSchemaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	SchemaMain = store.NewSchemaMain()
	SchemaMain.Stdout = stdout
	schemaCommand := &cobra.Command{
		Use:   "schema",
		Short: "create every table, or print the DDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return SchemaMain.Run()
		},
	}
	if err := commandeer.Flags(schemaCommand.Flags(), SchemaMain); err != nil {
		panic(err)
	}
	return schemaCommand
}

func init() {
	subcommandFns["schema"] = NewSchemaCommand
}
