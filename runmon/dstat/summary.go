package dstat

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// Stat describes a single series.
type Stat struct {
	Mean float64
	Max  float64
	P95  float64
}

// Summary is the summary of a sample file.
type Summary struct {
	Count int
	Usr   Stat
	Sys   Stat
	// MemUsed is the used memory in percent. Rows without a total are left
	// out, and MemCount says how many rows are left.
	MemUsed  Stat
	MemCount int
}

// Summarize summarizes the samples. Empty series give zero stats.
func Summarize(s *Samples) (Summary, error) {
	var usr, sys, mem stats.Float64Data

	for _, row := range s.Rows {
		usr = append(usr, row.Usr)
		sys = append(sys, row.Sys)

		if p, ok := row.UsedPercent(); ok {
			mem = append(mem, p)
		}
	}

	var err error
	sum := Summary{Count: len(s.Rows), MemCount: len(mem)}

	if sum.Usr, err = describe(usr); err != nil {
		return sum, errors.Wrap(err, "usr")
	}
	if sum.Sys, err = describe(sys); err != nil {
		return sum, errors.Wrap(err, "sys")
	}
	if sum.MemUsed, err = describe(mem); err != nil {
		return sum, errors.Wrap(err, "memory")
	}

	return sum, nil
}

func describe(data stats.Float64Data) (Stat, error) {
	if data.Len() == 0 {
		return Stat{}, nil
	}

	var st Stat
	var err error

	if st.Mean, err = stats.Mean(data); err != nil {
		return st, err
	}
	if st.Max, err = stats.Max(data); err != nil {
		return st, err
	}
	if st.P95, err = stats.Percentile(data, 95); err != nil {
		return st, err
	}

	return st, nil
}

// WriteTable renders the summary as a table.
func WriteTable(w io.Writer, sum Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Series", "Samples", "Mean", "Max", "P95"})

	row := func(name string, n int, st Stat) {
		table.Append([]string{
			name,
			strconv.Itoa(n),
			formatFloat(st.Mean),
			formatFloat(st.Max),
			formatFloat(st.P95),
		})
	}

	row("usr CPU %", sum.Count, sum.Usr)
	row("sys CPU %", sum.Count, sum.Sys)
	row("memory used %", sum.MemCount, sum.MemUsed)

	table.Render()
}

// WriteCSV writes every sample as a CSV row, with its index as the time axis.
// The used percentage is empty for rows without a total.
func WriteCSV(w io.Writer, s *Samples) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"index", "usr", "sys", "used_mib", "total_mib", "used_percent"}); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	for i, row := range s.Rows {
		percent := ""
		if p, ok := row.UsedPercent(); ok {
			percent = formatFloat(p)
		}

		record := []string{
			strconv.Itoa(i),
			formatFloat(row.Usr),
			formatFloat(row.Sys),
			formatFloat(row.UsedMiB),
			formatFloat(row.TotalMiB),
			percent,
		}

		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush CSV")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
