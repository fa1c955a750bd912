package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/display"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/sym"
)

// CatalogCmd inspects the template catalog
var CatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect business templates",
	Long: `Inspect the template catalog: the builtin templates overlaid with the
files in catalog.path (*.json, *.toml, *.yaml).

Examples:
  strata catalog ls
  strata catalog show payment
  strata catalog check ./templates/invoice.toml`,
}

var catalogLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List template kinds",
	RunE:  runCatalogLs,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <kind>",
	Short: "Show one template",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Validate template files without loading them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCatalogCheck,
}

func init() {
	for _, c := range []*cobra.Command{catalogLsCmd, catalogShowCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
	CatalogCmd.AddCommand(catalogLsCmd)
	CatalogCmd.AddCommand(catalogShowCmd)
	CatalogCmd.AddCommand(catalogCheckCmd)
}

func loadCatalog() (*catalog.Catalog, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return catalog.Load(cfg.Catalog.Path)
}

func runCatalogLs(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	kinds := cat.Kinds()
	entries := make([]catalog.Entry, 0, len(kinds))
	for _, k := range kinds {
		if e, ok := cat.Resolve(k); ok {
			entries = append(entries, e)
		}
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			sym.Glyph(e.Kind) + " " + e.Kind,
			e.Name,
			strconv.Itoa(len(e.SeedNodes)),
			strconv.Itoa(len(e.SeedEdges)),
			strings.Join(e.Statuses, " → "),
		})
	}
	return display.Table([]string{"Kind", "Name", "Seeds", "Edges", "Statuses"}, rows, "No templates")
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	e, ok := cat.Resolve(args[0])
	if !ok {
		return errors.WithHint(errors.NewNotFoundError("template %q", args[0]),
			"kinds without a template open a placeholder canvas")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(e)
	}

	pterm.DefaultSection.Println(e.Name)
	if e.Description != "" {
		pterm.Println(e.Description)
	}
	if err := display.KeyValues([][2]string{
		{"Kind", e.Kind},
		{"Default label", e.DefaultLabel},
		{"Statuses", strings.Join(e.Statuses, " → ")},
	}); err != nil {
		return err
	}

	seedRows := make([][]string, 0, len(e.SeedNodes))
	for _, sn := range e.SeedNodes {
		seedRows = append(seedRows, []string{sn.ID, sym.Glyph(sn.Kind) + " " + sn.Kind, sn.Label})
	}
	if err := display.Table([]string{"Seed", "Kind", "Label"}, seedRows, "No seed nodes"); err != nil {
		return err
	}

	fieldRows := make([][]string, 0, len(e.DisplayFields))
	for _, f := range e.DisplayFields {
		fieldRows = append(fieldRows, []string{f.Label, f.Key, f.Default})
	}
	return display.Table([]string{"Field", "Attribute", "Default"}, fieldRows, "")
}

func runCatalogCheck(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		entries, err := catalog.LoadFile(path)
		if err != nil {
			failed++
			pterm.Error.Printf("%s: %s\n", path, err)
			for _, hint := range errors.GetAllHints(err) {
				pterm.Println("  " + hint)
			}
			continue
		}
		kinds := make([]string, 0, len(entries))
		for _, e := range entries {
			kinds = append(kinds, e.Kind)
		}
		pterm.Success.Printf("%s: %s\n", path, strings.Join(kinds, ", "))
	}
	if failed > 0 {
		return errors.Newf("%d of %d template files invalid", failed, len(args))
	}
	return nil
}
