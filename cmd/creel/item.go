package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/store"
	"github.com/zulandar/coursereel/internal/validate"
)

// itemResponse mirrors the server's single-item response.
type itemResponse struct {
	Item       item.WorkItem    `json:"item"`
	Validation *validate.Result `json:"validation,omitempty"`
}

type listResponse struct {
	Items []item.WorkItem `json:"items"`
	Count int             `json:"count"`
}

func newItemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Work item commands",
	}

	cmd.AddCommand(newItemCreateCmd())
	cmd.AddCommand(newItemListCmd())
	cmd.AddCommand(newItemShowCmd())
	cmd.AddCommand(newItemUpdateCmd())
	cmd.AddCommand(newItemAttachCmd())
	cmd.AddCommand(newItemDetachCmd())
	cmd.AddCommand(newItemScriptCmd())
	cmd.AddCommand(newItemValidateCmd())
	cmd.AddCommand(newItemRunCmd())
	cmd.AddCommand(newItemRetryCmd())
	cmd.AddCommand(newItemSubmitCmd())
	cmd.AddCommand(newItemReopenCmd())
	cmd.AddCommand(newItemDeleteCmd())
	return cmd
}

// metadataFlags binds the descriptive fields; only flags the user set end up
// in the patch.
type metadataFlags struct {
	title, category, template, training string
	mandatory                           bool
	targets                             []string
}

func (f *metadataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "item title")
	cmd.Flags().StringVar(&f.category, "category", "", "category id")
	cmd.Flags().StringVar(&f.template, "template", "", "video template id")
	cmd.Flags().StringVar(&f.training, "training", "", "job training id (job categories)")
	cmd.Flags().BoolVar(&f.mandatory, "mandatory", false, "mark as mandatory training")
	cmd.Flags().StringSliceVar(&f.targets, "target", nil, "target department id (repeatable)")
}

func (f *metadataFlags) patch(cmd *cobra.Command) store.MetadataPatch {
	var p store.MetadataPatch
	changed := cmd.Flags().Changed
	if changed("title") {
		p.Title = &f.title
	}
	if changed("category") {
		p.CategoryID = &f.category
	}
	if changed("template") {
		p.TemplateID = &f.template
	}
	if changed("training") {
		p.JobTrainingID = &f.training
	}
	if changed("mandatory") {
		p.IsMandatory = &f.mandatory
	}
	if changed("target") {
		targets := f.targets
		if targets == nil {
			targets = []string{}
		}
		p.TargetDeptIDs = &targets
	}
	return p
}

func newItemCreateCmd() *cobra.Command {
	var (
		cf clientFlags
		mf metadataFlags
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/items", nil, mf.patch(cmd), &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created draft %s\n", resp.Item.ID)
			printIssues(out, resp.Validation)
			return nil
		},
	}

	cf.register(cmd)
	mf.register(cmd)
	return cmd
}

func newItemListCmd() *cobra.Command {
	var (
		cf        clientFlags
		status    string
		category  string
		createdBy string
		query     string
		sortBy    string
		asc       bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		Long:  "Lists items, most recently updated first. Output is a table on a terminal and JSON otherwise.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			q := url.Values{}
			setIf(q, "status", status)
			setIf(q, "category", category)
			setIf(q, "createdBy", createdBy)
			setIf(q, "q", query)
			setIf(q, "sort", sortBy)
			if asc {
				q.Set("order", "asc")
			}
			var resp listResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/items", q, nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, resp.Items)
			}
			out := cmd.OutOrStdout()
			if len(resp.Items) == 0 {
				fmt.Fprintln(out, "No items found.")
				return nil
			}
			fmt.Fprintln(out, renderTable(itemHeaders, itemRows(resp.Items), nil))
			fmt.Fprintf(out, "%d item(s)\n", resp.Count)
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&category, "category", "", "filter by category id")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "filter by creator name")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search title, id, category, creator")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort key (updatedAt, createdAt, title)")
	cmd.Flags().BoolVar(&asc, "asc", false, "ascending order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	return cmd
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func newItemShowCmd() *cobra.Command {
	var (
		cf     clientFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			if err := c.do(cmd.Context(), http.MethodGet, itemPath(args[0]), nil, nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, resp.Item)
			}
			printItem(cmd.OutOrStdout(), resp.Item)
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	return cmd
}

func itemPath(id string, parts ...string) string {
	return "/api/items/" + url.PathEscape(id) + strings.Join(parts, "")
}

func newItemUpdateCmd() *cobra.Command {
	var (
		cf clientFlags
		mf metadataFlags
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change item metadata",
		Long: `Changes the descriptive fields of an editable item. Changing metadata after
generation clears the generated script, video, and thumbnail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			if err := c.do(cmd.Context(), http.MethodPatch, itemPath(args[0], "/metadata"), nil, mf.patch(cmd), &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Updated %s\n", resp.Item.ID)
			printIssues(out, resp.Validation)
			return nil
		},
	}

	cf.register(cmd)
	mf.register(cmd)
	return cmd
}

type fileBody struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// sourceFileBodies describes local files the way upload transport would.
func sourceFileBodies(paths []string) ([]fileBody, error) {
	files := make([]fileBody, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, fileBody{
			Name: filepath.Base(p),
			Size: info.Size(),
			MIME: mime.TypeByExtension(filepath.Ext(p)),
		})
	}
	return files, nil
}

func newItemAttachCmd() *cobra.Command {
	var cf clientFlags

	cmd := &cobra.Command{
		Use:   "attach <id> <file>...",
		Short: "Attach source documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := sourceFileBodies(args[1:])
			if err != nil {
				return err
			}
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			body := map[string]any{"files": files}
			if err := c.do(cmd.Context(), http.MethodPost, itemPath(args[0], "/files"), nil, body, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s now has %d source file(s)\n", resp.Item.ID, len(resp.Item.SourceFiles))
			printIssues(out, resp.Validation)
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}

func newItemDetachCmd() *cobra.Command {
	var cf clientFlags

	cmd := &cobra.Command{
		Use:   "detach <id> <file-id>",
		Short: "Remove a source document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			path := itemPath(args[0], "/files/", url.PathEscape(args[1]))
			if err := c.do(cmd.Context(), http.MethodDelete, path, nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}

func newItemScriptCmd() *cobra.Command {
	var (
		cf   clientFlags
		text string
		file string
	)

	cmd := &cobra.Command{
		Use:   "script <id>",
		Short: "Replace the script text",
		Long:  "Replaces the script with --text, or with the contents of --file (\"-\" reads stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, text, file)
			if err != nil {
				return err
			}
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			body := map[string]string{"script": script}
			if err := c.do(cmd.Context(), http.MethodPut, itemPath(args[0], "/script"), nil, body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Script of %s updated (%d characters)\n", resp.Item.ID, len([]rune(resp.Item.Script)))
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().StringVar(&text, "text", "", "script text")
	cmd.Flags().StringVar(&file, "file", "", "read the script from a file")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	return cmd
}

func readScript(cmd *cobra.Command, text, file string) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), err
	case cmd.Flags().Changed("text"):
		return text, nil
	}
	return "", fmt.Errorf("one of --text or --file is required")
}

func newItemValidateCmd() *cobra.Command {
	var (
		cf     clientFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Check an item against the review rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			var result validate.Result
			if err := c.do(cmd.Context(), http.MethodGet, itemPath(args[0], "/validation"), nil, nil, &result); err != nil {
				return err
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			if result.OK {
				fmt.Fprintln(out, "OK")
				return nil
			}
			printIssues(out, &result)
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	return cmd
}

// gatedCommand runs a POST that the server may refuse with validation issues.
func gatedCommand(use, short, suffix string, body func() (any, error), done func(cmd *cobra.Command, w item.WorkItem) error) *cobra.Command {
	var cf clientFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := body()
			if err != nil {
				return err
			}
			c, err := cf.client()
			if err != nil {
				return err
			}
			var resp itemResponse
			err = c.do(cmd.Context(), http.MethodPost, itemPath(args[0], suffix), nil, payload, &resp)
			if isValidationError(err) {
				printIssues(cmd.ErrOrStderr(), resp.Validation)
			}
			if err != nil {
				return err
			}
			if done != nil {
				return done(cmd, resp.Item)
			}
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}

func noBody() (any, error) { return nil, nil }

func newItemRunCmd() *cobra.Command {
	var (
		mode string
		wait bool
	)

	cmd := gatedCommand("run <id>", "Start a generation job", "/run",
		func() (any, error) {
			m, ok := item.ParseMode(strings.ToUpper(mode))
			if !ok {
				return nil, fmt.Errorf("unknown mode %q (SCRIPT_ONLY, VIDEO_ONLY, FULL)", mode)
			}
			return map[string]string{"mode": string(m)}, nil
		},
		func(cmd *cobra.Command, w item.WorkItem) error {
			return reportJob(cmd, w, wait)
		},
	)
	cmd.Flags().StringVar(&mode, "mode", string(item.ModeFull), "SCRIPT_ONLY, VIDEO_ONLY, or FULL")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the job to finish")
	return cmd
}

func newItemRetryCmd() *cobra.Command {
	var wait bool
	cmd := gatedCommand("retry <id>", "Retry a failed generation job", "/retry", noBody,
		func(cmd *cobra.Command, w item.WorkItem) error {
			return reportJob(cmd, w, wait)
		},
	)
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the job to finish")
	return cmd
}

// reportJob prints the admitted job and optionally polls until it settles.
func reportJob(cmd *cobra.Command, w item.WorkItem, wait bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started %s job for %s\n", w.Pipeline.Mode, w.ID)
	if !wait {
		return nil
	}
	c, err := clientFromCmd(cmd)
	if err != nil {
		return err
	}
	final, err := waitForJob(cmd.Context(), c, w.ID, time.Second, func(cur item.WorkItem) {
		fmt.Fprintf(out, "  %3d%% %s\n", cur.Pipeline.Progress, cur.Pipeline.Stage)
	})
	if err != nil {
		return err
	}
	if final.Pipeline.State == item.PipelineFailed {
		return fmt.Errorf("generation failed: %s", final.FailedReason)
	}
	fmt.Fprintf(out, "Generation finished for %s\n", final.ID)
	return nil
}

func clientFromCmd(cmd *cobra.Command) (*apiClient, error) {
	server, _ := cmd.Flags().GetString("server")
	return newAPIClient(server, identity{})
}

// waitForJob polls the item until its pipeline leaves RUNNING.
func waitForJob(ctx context.Context, c *apiClient, id string, every time.Duration, tick func(item.WorkItem)) (item.WorkItem, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := -1
	for {
		var resp itemResponse
		if err := c.do(ctx, http.MethodGet, itemPath(id), nil, nil, &resp); err != nil {
			return item.WorkItem{}, err
		}
		if resp.Item.Pipeline.State != item.PipelineRunning {
			return resp.Item, nil
		}
		if tick != nil && resp.Item.Pipeline.Progress != last {
			last = resp.Item.Pipeline.Progress
			tick(resp.Item)
		}
		select {
		case <-ctx.Done():
			return item.WorkItem{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newItemSubmitCmd() *cobra.Command {
	return gatedCommand("submit <id>", "Request review", "/submit", noBody,
		func(cmd *cobra.Command, w item.WorkItem) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s for %s review\n", w.ID, w.ReviewStage)
			return nil
		},
	)
}

func newItemReopenCmd() *cobra.Command {
	return gatedCommand("reopen <id>", "Start a new version of a rejected item", "/reopen", noBody,
		func(cmd *cobra.Command, w item.WorkItem) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened %s as version %d\n", w.ID, w.Version)
			return nil
		},
	)
}

func newItemDeleteCmd() *cobra.Command {
	var cf clientFlags

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft or failed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodDelete, itemPath(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}
