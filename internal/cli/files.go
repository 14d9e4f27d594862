package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/library"
)

// NewShowCommand creates the show command
func NewShowCommand() *cobra.Command {
	var kind bool

	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print a file's content",
		Args:  cobra.ExactArgs(1),
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
			e, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			a.ctrl.Select(e)
			content, err := a.ctrl.Load(ctx)
			if err != nil {
				return err
			}
			if kind {
				fmt.Fprintf(cmd.ErrOrStderr(), "kind: %s\n", docs.DetectKind(e, content))
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}

	cmd.Flags().BoolVar(&kind, "kind", false, "also print the detected content kind to stderr")
	return cmd
}

// NewEditCommand creates the edit command
func NewEditCommand() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "edit <path>",
		Short: "Replace a file's content",
		Long:  `Replace a file's content with the contents of --from, or stdin when --from is "-".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			content, err := readInput(cmd.InOrStdin(), from)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.refresh(ctx); err != nil {
				return err
			}
			e, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			a.ctrl.Select(e)
			if _, err := a.ctrl.Load(ctx); err != nil {
				return err
			}
			if err := a.ctrl.StartEdit(); err != nil {
				return err
			}
			if err := a.ctrl.SetBuffer(content); err != nil {
				return err
			}
			return a.ctrl.Save(ctx)
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "-", "file to read the new content from")
	return cmd
}

func readInput(stdin io.Reader, from string) (string, error) {
	if from == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(from)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", from, err)
	}
	return string(data), nil
}

// NewRenameCommand creates the rename command
func NewRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file within its folder",
		Args:  cobra.ExactArgs(2),
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
			e, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			return a.ctrl.Rename(ctx, e, args[1])
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a corrupted file or request deletion of an indexed one",
		Long: `Corrupted files (in storage but in neither index) are removed immediately.
Indexed files are queued for an approver; see "kbdocs requests".`,
		Args: cobra.ExactArgs(1),
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
			e, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if e.DeleteKind() == docs.DeleteDirect {
				return a.ctrl.DeleteCorrupted(ctx, e)
			}
			req, err := a.ctrl.RequestDelete(ctx, e)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), req.ID)
			return nil
		},
	}
}

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <category> <file>...",
		Short: "Upload local files into a category folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files := make([]library.UploadFile, 0, len(args)-1)
			for _, p := range args[1:] {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}
				files = append(files, library.UploadFile{Name: filepath.Base(p), Content: data})
			}

			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			// Listing failures do not block an upload.
			_ = a.ctrl.Refresh(ctx)

			uploaded, err := a.ctrl.Upload(ctx, args[0], files)
			for _, e := range uploaded {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.FileID, e.FilePath)
			}
			return err
		},
	}
}
