package logger

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type Table struct {
	headers     []string
	rows        [][]string
	columnWidth []int
}

func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}

	return &Table{
		headers:     headers,
		columnWidth: widths,
	}
}

// AddRow pads or truncates cells to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)

	for i, cell := range row {
		if n := utf8.RuneCountInString(cell); n > t.columnWidth[i] {
			t.columnWidth[i] = n
		}
	}

	t.rows = append(t.rows, row)
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) line(left, mid, right string) string {
	var sb strings.Builder
	sb.WriteString(left)
	for i, w := range t.columnWidth {
		sb.WriteString(strings.Repeat("─", w+2))
		if i < len(t.columnWidth)-1 {
			sb.WriteString(mid)
		}
	}
	sb.WriteString(right)
	sb.WriteByte('\n')
	return sb.String()
}

func (t *Table) row(cells []string) string {
	var sb strings.Builder
	sb.WriteString("│")
	for i, cell := range cells {
		pad := t.columnWidth[i] - utf8.RuneCountInString(cell)
		sb.WriteString(" " + cell + strings.Repeat(" ", pad) + " │")
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteString(t.line("┌", "┬", "┐"))
	sb.WriteString(t.row(t.headers))
	sb.WriteString(t.line("├", "┼", "┤"))
	for _, r := range t.rows {
		sb.WriteString(t.row(r))
	}
	sb.WriteString(t.line("└", "┴", "┘"))
	return sb.String()
}

func (t *Table) Render(w io.Writer) {
	fmt.Fprint(w, t.String())
}
