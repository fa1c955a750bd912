package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/display"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/server"
	"github.com/teranos/strata/storage"
	"github.com/teranos/strata/sym"
)

// CanvasCmd inspects stored canvases
var CanvasCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Inspect stored canvases",
	Long: `Inspect the canvases kept by the configured storage backend.

Canvases are stored by title, so a sub-canvas is found under the label of the
node it was opened from.

Examples:
  strata canvas ls                       # List stored canvases
  strata canvas show "Main Canvas"       # Print nodes and edges
  strata canvas export "Payment" -o p.html
  strata canvas rm "Old Draft"
  strata canvas rm --key canvas_Old_Draft # Remove an unreadable entry by key`,
}

var canvasLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored canvases",
	RunE:  runCanvasLs,
}

var canvasShowCmd = &cobra.Command{
	Use:   "show <title>",
	Short: "Print the nodes and edges of a stored canvas",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanvasShow,
}

var canvasRmCmd = &cobra.Command{
	Use:   "rm <title>",
	Short: "Delete a stored canvas, or with --key an entry by storage key",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanvasRm,
}

var canvasExportCmd = &cobra.Command{
	Use:   "export <title>",
	Short: "Render a stored canvas as a static HTML page",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanvasExport,
}

var (
	exportOutput string
	rmByKey      bool
)

func init() {
	for _, c := range []*cobra.Command{canvasLsCmd, canvasShowCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
	canvasRmCmd.Flags().BoolVar(&rmByKey, "key", false, "Treat the argument as a raw storage key")
	canvasExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: <title>.html)")

	CanvasCmd.AddCommand(canvasLsCmd)
	CanvasCmd.AddCommand(canvasShowCmd)
	CanvasCmd.AddCommand(canvasRmCmd)
	CanvasCmd.AddCommand(canvasExportCmd)
}

func openStoreRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openRuntime(cmd.Context(), cfg, runtimeOptions{})
}

func runCanvasLs(cmd *cobra.Command, args []string) error {
	rt, err := openStoreRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	summaries, err := rt.store.List(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(summaries)
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		if !s.Readable {
			rows = append(rows, []string{s.Key, pterm.FgRed.Sprint("unreadable"), "", "", ""})
			continue
		}
		rows = append(rows, []string{
			s.Title,
			s.Version,
			strconv.Itoa(s.Nodes),
			strconv.Itoa(s.Edges),
			s.Timestamp.Local().Format(time.DateTime),
		})
	}
	return display.Table([]string{"Title", "Version", "Nodes", "Edges", "Saved"}, rows, "No stored canvases")
}

func loadStored(cmd *cobra.Command, rt *runtime, title string) (*canvas.Canvas, error) {
	c, ok := rt.store.Load(cmd.Context(), title)
	if !ok {
		return nil, errors.WithHint(errors.NewNotFoundError("canvas %q", title),
			"run 'strata canvas ls' to list stored titles")
	}
	return c, nil
}

func runCanvasShow(cmd *cobra.Command, args []string) error {
	rt, err := openStoreRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	c, err := loadStored(cmd, rt, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{
			"id":          c.ID,
			"title":       c.Title,
			"origin_node": c.OriginNode,
			"nodes":       c.Graph.Nodes(),
			"edges":       c.Graph.Edges(),
		})
	}

	pterm.DefaultSection.Println(c.Title)
	nodeRows := make([][]string, 0, c.Graph.NodeCount())
	for _, n := range c.Graph.Nodes() {
		nodeRows = append(nodeRows, []string{
			sym.Glyph(n.Kind) + " " + n.Label,
			n.Kind,
			n.ID,
			fmt.Sprintf("%.0f,%.0f", n.Position.X, n.Position.Y),
			n.StringAttr("status"),
		})
	}
	if err := display.Table([]string{"Label", "Kind", "ID", "Position", "Status"}, nodeRows, "No nodes"); err != nil {
		return err
	}

	edgeRows := make([][]string, 0, c.Graph.EdgeCount())
	for _, e := range c.Graph.Edges() {
		amount := ""
		if e.Amount != nil {
			amount = strconv.FormatFloat(*e.Amount, 'f', -1, 64)
		}
		edgeRows = append(edgeRows, []string{e.Source + " → " + e.Target, e.Kind, amount, e.ID})
	}
	return display.Table([]string{"Edge", "Kind", "Amount", "ID"}, edgeRows, "No edges")
}

func runCanvasRm(cmd *cobra.Command, args []string) error {
	rt, err := openStoreRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := removeCanvas(cmd.Context(), rt.store, args[0], rmByKey); err != nil {
		return err
	}
	pterm.Success.Printf("Removed %s\n", args[0])
	return nil
}

// removeCanvas deletes by title, or by raw storage key so entries too broken
// to decode a title from can still be cleaned up.
func removeCanvas(ctx context.Context, store *storage.Store, name string, byKey bool) error {
	if !byKey {
		if !store.Exists(ctx, name) {
			return errors.NewNotFoundError("canvas %q", name)
		}
		return store.Remove(ctx, name)
	}

	if !strings.HasPrefix(name, storage.KeyPrefix) {
		return errors.WithHintf(errors.NewInvalidRequestError("%q is not a canvas key", name),
			"canvas keys start with %q; see 'strata canvas ls'", storage.KeyPrefix)
	}
	if _, ok, err := store.KV().Get(ctx, name); err != nil {
		return errors.Wrapf(err, "read %s", name)
	} else if !ok {
		return errors.NewNotFoundError("key %q", name)
	}
	return store.RemoveKey(ctx, name)
}

func runCanvasExport(cmd *cobra.Command, args []string) error {
	rt, err := openStoreRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	c, err := loadStored(cmd, rt, args[0])
	if err != nil {
		return err
	}
	out := exportOutput
	if out == "" {
		out = server.ExportFilename(c.Title)
	}
	if err := os.WriteFile(out, []byte(server.RenderCanvas(c, rt.catalog)), am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write %s", out)
	}
	pterm.Success.Printf("Exported %s to %s\n", c.Title, out)
	return nil
}
