package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the kbdocs command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kbdocs",
		Short: "Manage a project's knowledge-base documents",
		Long: `kbdocs lists, views, edits, renames, uploads and deletes the knowledge-base
files of a project. Files live in a blob store (local directory or S3) and are
indexed in PostgreSQL; the listing reconciles both and flags storage objects
that no index knows about.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewShowCommand())
	rootCmd.AddCommand(NewEditCommand())
	rootCmd.AddCommand(NewRenameCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewUploadCommand())
	rootCmd.AddCommand(NewRequestsCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
