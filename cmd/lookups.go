package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/wdhistory/lookup"
	"github.com/spf13/cobra"
)

// LookupsMain is wrapped by NewLookupsCommand and only exported for testing purposes.
var LookupsMain *lookup.Main

// NewLookupsCommand returns a new cobra command wrapping LookupsMain.
func NewLookupsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	LookupsMain = lookup.NewMain()
	lookupsCommand := &cobra.Command{
		Use:   "lookups",
		Short: "load property labels, entity info and relation edges into a bolt cache",
		Long: `Reads tab separated exports and writes the bolt file passed to
"ingest --lookup-cache". Relation edges are stored as their
transitive closure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return LookupsMain.Run()
		},
	}
	if err := commandeer.Flags(lookupsCommand.Flags(), LookupsMain); err != nil {
		panic(err)
	}
	return lookupsCommand
}

func init() {
	subcommandFns["lookups"] = NewLookupsCommand
}
