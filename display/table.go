package display

import (
	"github.com/pterm/pterm"
)

// Table renders rows under header. Nothing is printed for an empty row set
// apart from the empty message, when one is given.
func Table(header []string, rows [][]string, empty string) error {
	if len(rows) == 0 {
		if empty != "" {
			pterm.Info.Println(empty)
		}
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// KeyValues renders label/value pairs as a borderless two-column table.
func KeyValues(pairs [][2]string) error {
	data := make(pterm.TableData, 0, len(pairs))
	for _, p := range pairs {
		data = append(data, []string{pterm.FgGray.Sprint(p[0]), p[1]})
	}
	return pterm.DefaultTable.WithData(data).Render()
}
