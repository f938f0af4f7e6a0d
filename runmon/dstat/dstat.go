// Package dstat parses the text that dstat writes with -c --mem-adv and
// summarizes it. The sampler supervisor never looks into its output file; this
// package is only used after a session, by the report command.
package dstat

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// RequiredColumns are the columns that a sample file must have.
var RequiredColumns = []string{"usr", "sys", "used", "total"}

// Sample is a single row of a sample file. Memory is in MiB.
type Sample struct {
	Usr      float64
	Sys      float64
	UsedMiB  float64
	TotalMiB float64
}

// UsedPercent returns the used memory as a percentage of the total. False is
// returned if the total is unknown.
func (s Sample) UsedPercent() (float64, bool) {
	if s.TotalMiB <= 0 {
		return 0, false
	}
	return s.UsedMiB / s.TotalMiB * 100, true
}

// Samples is a parsed sample file.
type Samples struct {
	Rows []Sample
}

// ErrMissingColumn is returned if the header lacks one of RequiredColumns.
var ErrMissingColumn = errors.New("required column not found")

// ErrNoHeader is returned if a data row comes before any header row.
var ErrNoHeader = errors.New("no header row before data")

// Parse parses dstat text. Cells are separated by whitespace and pipes. Group
// banners (rows starting with a dash) are skipped, and so are repeated header
// rows. Cells that can't be parsed become 0.
func Parse(r io.Reader) (*Samples, error) {
	scanner := bufio.NewScanner(r)

	var columns map[string]int
	samples := &Samples{}

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "-") {
			continue
		}

		cells := splitCells(text)
		if len(cells) == 0 {
			continue
		}

		if isHeader(cells) {
			c, err := headerColumns(cells)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			columns = c
			continue
		}

		if columns == nil {
			return nil, errors.Wrapf(ErrNoHeader, "line %d", line)
		}

		samples.Rows = append(samples.Rows, Sample{
			Usr:      parseNumber(cell(cells, columns["usr"])),
			Sys:      parseNumber(cell(cells, columns["sys"])),
			UsedMiB:  ParseMemory(cell(cells, columns["used"])),
			TotalMiB: ParseMemory(cell(cells, columns["total"])),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read samples")
	}

	if columns == nil {
		return nil, ErrNoHeader
	}

	return samples, nil
}

func splitCells(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == '|' || unicode.IsSpace(r)
	})
}

// isHeader returns true if no cell of the row starts with a digit.
func isHeader(cells []string) bool {
	for _, c := range cells {
		if c[0] >= '0' && c[0] <= '9' {
			return false
		}
	}
	return true
}

func headerColumns(cells []string) (map[string]int, error) {
	columns := make(map[string]int, len(cells))
	for i, name := range cells {
		// dstat repeats names across groups; the first one wins.
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}

	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "column %q", name)
		}
	}

	return columns, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseMemory parses a dstat memory cell such as "512k", "1.5G" or "100B" into
// MiB. A bare number is in bytes. Invalid cells return 0.
func ParseMemory(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	scale := 1.0 / (1024 * 1024)

	switch s[len(s)-1] {
	case 'B', 'b':
		s = s[:len(s)-1]
	case 'k', 'K':
		scale = 1.0 / 1024
		s = s[:len(s)-1]
	case 'M', 'm':
		scale = 1
		s = s[:len(s)-1]
	case 'G', 'g':
		scale = 1024
		s = s[:len(s)-1]
	case 'T', 't':
		scale = 1024 * 1024
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}

	return f * scale
}
