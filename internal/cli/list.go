package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/kbdocs/internal/lifecycle"
)

// ListFlags holds list command flags
type ListFlags struct {
	Search    string
	Collapsed []string
	JSON      bool
}

var listFlags ListFlags

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the files of a project by category",
		Long: `Reconcile the storage listing with the metadata and archive indexes and
print the result grouped by category. Files present in storage but missing
from both indexes are marked as corrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.refresh(ctx); err != nil {
				return err
			}
			for _, token := range listFlags.Collapsed {
				a.ctrl.SetSectionOpen(token, false)
			}
			a.ctrl.SetSearch(listFlags.Search)

			sections := a.ctrl.Sections()
			if listFlags.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sections)
			}
			printSections(cmd.OutOrStdout(), sections)
			return nil
		},
	}

	cmd.Flags().StringVarP(&listFlags.Search, "search", "s", "", "only show files whose name contains this text")
	cmd.Flags().StringSliceVar(&listFlags.Collapsed, "collapse", nil, "categories to collapse")
	cmd.Flags().BoolVar(&listFlags.JSON, "json", false, "print JSON")

	return cmd
}

func printSections(w io.Writer, sections []lifecycle.Section) {
	for _, s := range sections {
		fmt.Fprintf(w, "%s (%d)\n", s.Title, len(s.Entries))
		if !s.Open {
			continue
		}
		for _, e := range s.Entries {
			marker := " "
			if e.IsCorrupted {
				marker = "!"
			}
			fmt.Fprintf(w, "  %s %-40s %s\n", marker, e.FileName, e.RelativePath())
		}
	}
}
