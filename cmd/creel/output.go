package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/validate"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// wantJSON reports whether output should be JSON: when forced, or when stdout
// is not a terminal.
func wantJSON(cmd *cobra.Command, forced bool) bool {
	if forced {
		return true
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return !term.IsTerminal(int(f.Fd()))
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func itemRows(items []item.WorkItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, w := range items {
		rows = append(rows, []string{
			w.ID,
			truncate(w.Title, 40),
			w.CategoryLabel,
			statusLabel(w),
			pipelineLabel(w.Pipeline),
			fmt.Sprintf("v%d", w.Version),
			w.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

var itemHeaders = []string{"ID", "TITLE", "CATEGORY", "STATUS", "PIPELINE", "VER", "UPDATED"}

func statusLabel(w item.WorkItem) string {
	switch {
	case w.Status == item.StatusReviewPending && w.ReviewStage != item.StageNone:
		return fmt.Sprintf("%s/%s", w.Status, w.ReviewStage)
	case w.Status == item.StatusRejected && w.RejectedStage != item.StageNone:
		return fmt.Sprintf("%s/%s", w.Status, w.RejectedStage)
	}
	return string(w.Status)
}

func pipelineLabel(p item.Pipeline) string {
	switch p.State {
	case item.PipelineRunning:
		return fmt.Sprintf("%s %d%% %s", p.Mode, p.Progress, p.Stage)
	case item.PipelineIdle, "":
		return "-"
	}
	return string(p.State)
}

// printItem writes a detail view of one item.
func printItem(out io.Writer, w item.WorkItem) {
	fmt.Fprintf(out, "ID:          %s\n", w.ID)
	fmt.Fprintf(out, "Title:       %s\n", orDash(w.Title))
	fmt.Fprintf(out, "Version:     %d\n", w.Version)
	fmt.Fprintf(out, "Status:      %s\n", statusLabel(w))
	fmt.Fprintf(out, "Category:    %s (%s)\n", w.CategoryLabel, w.CategoryID)
	fmt.Fprintf(out, "Template:    %s\n", w.TemplateID)
	if w.JobTrainingID != "" {
		fmt.Fprintf(out, "Training:    %s\n", w.JobTrainingID)
	}
	fmt.Fprintf(out, "Mandatory:   %t\n", w.IsMandatory)
	fmt.Fprintf(out, "Targets:     %s\n", orDash(strings.Join(w.TargetDeptIDs, ", ")))
	fmt.Fprintf(out, "Created by:  %s\n", orDash(w.CreatedByName))
	fmt.Fprintf(out, "Updated:     %s\n", w.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Pipeline:    %s\n", pipelineLabel(w.Pipeline))
	if w.Pipeline.Message != "" {
		fmt.Fprintf(out, "             %s\n", w.Pipeline.Message)
	}
	if w.FailedReason != "" {
		fmt.Fprintf(out, "Failure:     %s\n", w.FailedReason)
	}
	if w.RejectedComment != "" {
		fmt.Fprintf(out, "Rejection:   %s\n", w.RejectedComment)
	}
	if w.ScriptApprovedAt != nil {
		fmt.Fprintf(out, "Script OK:   %s\n", w.ScriptApprovedAt.Local().Format(time.DateTime))
	}
	if w.PublishedAt != nil {
		fmt.Fprintf(out, "Published:   %s\n", w.PublishedAt.Local().Format(time.DateTime))
	}
	if w.VideoURL != "" {
		fmt.Fprintf(out, "Video:       %s\n", w.VideoURL)
	}
	if w.ThumbnailURL != "" {
		fmt.Fprintf(out, "Thumbnail:   %s\n", w.ThumbnailURL)
	}
	if len(w.SourceFiles) > 0 {
		fmt.Fprintln(out, "Sources:")
		for _, f := range w.SourceFiles {
			fmt.Fprintf(out, "  %s  %s (%d bytes)\n", f.ID, f.Name, f.Size)
		}
	}
	if len(w.VersionHistory) > 0 {
		fmt.Fprintln(out, "History:")
		for _, v := range w.VersionHistory {
			fmt.Fprintf(out, "  v%d %s: %s\n", v.Version, v.Status, v.Reason)
		}
	}
	if w.Script != "" {
		fmt.Fprintf(out, "\nScript:\n%s\n", w.Script)
	}
}

func printIssues(out io.Writer, r *validate.Result) {
	if r == nil || len(r.Issues) == 0 {
		return
	}
	fmt.Fprintln(out, "Issues:")
	for _, is := range r.Issues {
		fmt.Fprintf(out, "  - [%s] %s\n", is.Code, is.Message)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
