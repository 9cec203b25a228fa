// Package report renders standardization results as Markdown tables and
// HTML.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Table is a titled grid of preformatted cells.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Markdown renders the table with padded columns. Columns whose cells are
// all numeric (or blank) are right-aligned.
func (t Table) Markdown() string {
	ncol := len(t.Header)
	width := make([]int, ncol)
	numeric := make([]bool, ncol)
	for j, h := range t.Header {
		width[j] = max(3, utf8.RuneCountInString(h))
		numeric[j] = true
	}
	for _, row := range t.Rows {
		for j := 0; j < ncol && j < len(row); j++ {
			width[j] = max(width[j], utf8.RuneCountInString(row[j]))
			if row[j] != "" && !isNumber(row[j]) {
				numeric[j] = false
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&b, "### %s\n\n", t.Title)
	}
	line := func(cells []string) {
		b.WriteString("|")
		for j := 0; j < ncol; j++ {
			cell := ""
			if j < len(cells) {
				cell = cells[j]
			}
			b.WriteString(" " + pad(cell, width[j], numeric[j]) + " |")
		}
		b.WriteString("\n")
	}
	line(t.Header)
	b.WriteString("|")
	for j := 0; j < ncol; j++ {
		if numeric[j] {
			b.WriteString(" " + strings.Repeat("-", width[j]-1) + ": |")
		} else {
			b.WriteString(" " + strings.Repeat("-", width[j]) + " |")
		}
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		line(row)
	}
	return b.String()
}

func pad(s string, w int, right bool) string {
	n := w - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// f formats v with prec decimals; NaN and infinities are blank.
func f(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// e formats v in scientific notation; NaN and infinities are blank.
func e(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'e', 3, 64)
}

// pm formats a value with its standard error.
func pm(v, se float64, prec int) string {
	s := f(v, prec)
	if s == "" {
		return ""
	}
	if u := f(se, prec); u != "" {
		s += " ± " + u
	}
	return s
}

func correlation(c, v1, v2 float64) float64 {
	if v1 <= 0 || v2 <= 0 {
		return math.NaN()
	}
	return c / math.Sqrt(v1*v2)
}
