package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"fruittrace/cmd/tracectl/output"
	"fruittrace/internal/database"
	"fruittrace/internal/model"
	"fruittrace/pkg/pagination"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRequestsCmd(g *globalFlags) *cobra.Command {
	var (
		status string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List approval requests",
		Long: `List the approval ledger, newest first, with per-status totals.

Examples:
  tracectl requests --status pending
  tracectl requests --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := g.open()
			if err != nil {
				return err
			}
			defer database.Close(db)

			ledger := newServices(db, cfg).ledger
			operator := model.Actor{ID: uuid.Nil, Role: model.RoleAdmin}
			ctx := cmd.Context()

			p := pagination.Normalize(page, limit)
			requests, total, err := ledger.ListRequests(ctx, operator, status, p.Page, p.Limit)
			if err != nil {
				return err
			}
			counts, err := ledger.CountByStatus(ctx, operator, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"items":  requests,
					"total":  total,
					"counts": counts,
				})
			}
			if len(requests) == 0 {
				output.Muted(out, "No approval requests")
			} else {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					output.Header("ID"), output.Header("TYPE"), output.Header("STATUS"), output.Header("NAME"), output.Header("CREATED"))
				for _, r := range requests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.RequestType, r.Status, r.DisplayName, r.CreatedAt)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			output.Muted(out, "pending %d · approved %d · rejected %d", counts.Pending, counts.Approved, counts.Rejected)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, approved or rejected")
	cmd.Flags().IntVar(&page, "page", 1, "Page")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	return cmd
}
