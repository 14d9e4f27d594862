package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/kbdocs/internal/docs"
)

// NewRequestsCommand creates the requests command group for approvers
func NewRequestsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Review delete requests",
	}
	cmd.AddCommand(newRequestsListCommand())
	cmd.AddCommand(newRequestsResolveCommand("approve", "Approve a delete request and remove the file"))
	cmd.AddCommand(newRequestsResolveCommand("reject", "Reject a delete request and keep the file"))
	return cmd
}

func newRequestsListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List delete requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if status == "all" {
				status = ""
			}
			reqs, err := a.svc.ListDeleteRequests(ctx, a.cfg.Project, status)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILE\tREQUESTED BY\tCREATED")
			for _, r := range reqs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Status, docs.StripProject(r.FilePath), r.RequestedBy,
					r.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", docs.RequestPending, "pending, approved, rejected or all")
	return cmd
}

func newRequestsResolveCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			resolve := a.svc.RejectDeleteRequest
			if action == "approve" {
				resolve = a.svc.ApproveDeleteRequest
			}
			req, err := resolve(ctx, args[0], a.cfg.User)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", req.ID, req.Status, req.FilePath)
			return nil
		},
	}
}
