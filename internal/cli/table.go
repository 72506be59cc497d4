package cli

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	tablePadding  = 2
	maxCellWidth  = 48
	cellEllipsis  = "…"
	emptyCellMark = "-"
)

func writeTable(out io.Writer, headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := range row {
			if i >= len(widths) {
				break
			}
			row[i] = cell(row[i])
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	w := bufio.NewWriter(out)
	writeRow := func(row []string) {
		for i := range widths {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if i == len(widths)-1 {
				_, _ = w.WriteString(value)
				break
			}
			_, _ = w.WriteString(runewidth.FillRight(value, widths[i]+tablePadding))
		}
		_, _ = w.WriteString("\n")
	}

	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
	return w.Flush()
}

// cell flattens and truncates a value to one table cell
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return emptyCellMark
	}
	return runewidth.Truncate(s, maxCellWidth, cellEllipsis)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
