package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/notify"
	"github.com/zulandar/coursereel/internal/review"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Reviewer commands",
	}

	cmd.AddCommand(newReviewPendingCmd())
	cmd.AddCommand(newReviewDecisionsCmd())
	cmd.AddCommand(newReviewDecideCmd())
	return cmd
}

func newReviewPendingCmd() *cobra.Command {
	var (
		cf     clientFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List items awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp struct {
				Pending []review.Pending `json:"pending"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/reviews/pending", nil, nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, resp.Pending)
			}
			out := cmd.OutOrStdout()
			if len(resp.Pending) == 0 {
				fmt.Fprintln(out, "Nothing awaiting review.")
				return nil
			}
			rows := make([][]string, 0, len(resp.Pending))
			for _, p := range resp.Pending {
				rows = append(rows, []string{
					p.ContentID,
					notify.StageLabel(p.Stage),
					fmt.Sprintf("v%d", p.Version),
					truncate(p.Title, 40),
					p.Department,
					p.CreatorName,
					p.RequestedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			headers := []string{"ID", "STAGE", "VER", "TITLE", "DEPARTMENT", "CREATOR", "REQUESTED"}
			fmt.Fprintln(out, renderTable(headers, rows, nil))
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	return cmd
}

func newReviewDecisionsCmd() *cobra.Command {
	var (
		cf     clientFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "decisions [id]",
		Short: "Show the decision ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			q := url.Values{}
			if len(args) == 1 {
				q.Set("contentId", args[0])
			}
			var resp struct {
				Decisions []review.Decision `json:"decisions"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/reviews/decisions", q, nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, resp.Decisions)
			}
			rows := make([][]string, 0, len(resp.Decisions))
			for _, d := range resp.Decisions {
				rows = append(rows, []string{
					fmt.Sprintf("%d", d.Seq),
					d.ContentID,
					string(d.Stage),
					fmt.Sprintf("v%d", d.Version),
					string(d.Status),
					d.Reviewer,
					truncate(d.Comment, 40),
					d.At.Local().Format("2006-01-02 15:04:05"),
				})
			}
			headers := []string{"SEQ", "ID", "STAGE", "VER", "STATUS", "REVIEWER", "COMMENT", "AT"}
			aligns := []columnAlignment{alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	return cmd
}

func newReviewDecideCmd() *cobra.Command {
	var (
		cf       clientFlags
		stage    string
		comment  string
		reviewer string
	)

	cmd := &cobra.Command{
		Use:   "decide <id> <approve|reject>",
		Short: "Record a review decision",
		Long: `Appends a decision to the review ledger for the item's latest request.
The server applies it to the item immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := review.ParseStatus(args[1])
			if !ok || status == review.StatusPending {
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}
			st, ok := item.ParseStage(stage)
			if !ok {
				return fmt.Errorf("unknown stage %q (SCRIPT or FINAL)", stage)
			}
			c, err := cf.client()
			if err != nil {
				return err
			}
			if reviewer == "" {
				reviewer = cf.name
			}
			body := map[string]string{
				"contentId": args[0],
				"stage":     string(st),
				"status":    string(status),
				"comment":   comment,
				"reviewer":  reviewer,
			}
			var resp struct {
				Decision review.Decision `json:"decision"`
				Item     *item.WorkItem  `json:"item"`
			}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/reviews/decisions", nil, body, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %s %s for %s v%d\n", resp.Decision.Stage, resp.Decision.Status, args[0], resp.Decision.Version)
			if resp.Item != nil {
				fmt.Fprintf(out, "Item is now %s\n", statusLabel(*resp.Item))
			}
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().StringVar(&stage, "stage", string(item.StageScript), "review stage (SCRIPT or FINAL)")
	cmd.Flags().StringVar(&comment, "comment", "", "reviewer comment")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (default --as)")
	return cmd
}
