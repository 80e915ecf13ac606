package pdftext

import (
	"regexp"
	"strings"
)

// cellGap splits layout-mode lines into cells on runs of two or more spaces.
var cellGap = regexp.MustCompile(`\s{2,}`)

// minTableRows is the minimum number of lines (header + one data row) for a
// region to count as a table.
const minTableRows = 2

// DetectTables scans one page of layout-mode text for tabular regions:
// consecutive lines that split into the same number of columns (two or more).
// The first line of a region is treated as the header.
func DetectTables(pageText string, pageNum int) []Table {
	var tables []Table
	var block [][]string
	cols := 0

	flush := func() {
		if len(block) >= minTableRows {
			tables = append(tables, Table{
				Page:   pageNum,
				Header: block[0],
				Rows:   block[1:],
			})
		}
		block = nil
		cols = 0
	}

	for _, line := range strings.Split(pageText, "\n") {
		cells := splitCells(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		if cols != 0 && len(cells) != cols {
			flush()
		}
		cols = len(cells)
		block = append(block, cells)
	}
	flush()

	return tables
}

func splitCells(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	parts := cellGap.Split(trimmed, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
