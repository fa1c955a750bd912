package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/display"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/sym"
	"github.com/teranos/strata/version"
)

// printStartupBanner prints the server startup summary
func printStartupBanner(verbosity int, cfg *am.Config) {
	info := version.Get()

	glyphs := make([]string, 0, len(sym.PaletteOrder))
	for _, k := range sym.PaletteOrder {
		glyphs = append(glyphs, sym.Glyph(string(k)))
	}

	pterm.DefaultHeader.WithFullWidth().Println("strata " + strings.Join(glyphs, " "))

	pairs := [][2]string{
		{"Version", fmt.Sprintf("%s (commit %s)", info.Version, info.Short())},
		{"Built", info.BuildTime},
		{"Verbosity", logger.LevelName(verbosity)},
		{"Storage", storageSummary(cfg)},
		{"Root", cfg.GetRootTitle()},
	}
	if cfg.Catalog.Path != "" {
		watch := ""
		if cfg.Catalog.Watch {
			watch = " (watching)"
		}
		pairs = append(pairs, [2]string{"Templates", cfg.Catalog.Path + watch})
	}
	if cfg.Autosave.Enabled {
		pairs = append(pairs, [2]string{"Autosave", fmt.Sprintf("every %s", cfg.Autosave.Interval())})
	} else {
		pairs = append(pairs, [2]string{"Autosave", "off"})
	}
	_ = display.KeyValues(pairs)

	fmt.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
	fmt.Println()
}

func storageSummary(cfg *am.Config) string {
	switch cfg.Storage.Backend {
	case am.BackendSQLite:
		return "sqlite " + cfg.GetDatabasePath()
	case am.BackendFile:
		return "file " + cfg.Storage.Dir
	case am.BackendDynamoDB:
		return "dynamodb " + cfg.Storage.DynamoDB.Table
	}
	return cfg.Storage.Backend
}
