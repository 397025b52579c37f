package report

import "strings"

// formulaPrefixes start a cell that spreadsheets may evaluate.
const formulaPrefixes = "=+-@|%\t\r\n"

// EscapeCell neutralizes CSV formula injection in free text (card names,
// listing titles, URLs) by prefixing a single quote. Numeric columns are
// written by the exporters without passing through here, so negative
// numbers stay numeric.
func EscapeCell(value string) string {
	if value == "" || !strings.ContainsRune(formulaPrefixes, rune(value[0])) {
		return value
	}
	return "'" + value
}

// EscapeRow escapes every cell of a free-text row, such as a header.
func EscapeRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCell(cell)
	}
	return escaped
}
