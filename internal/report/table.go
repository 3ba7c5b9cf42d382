package report

import (
	"bytes"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/Ch00k/geoping/internal/stats"
)

// RenderTable writes the statistics as a console table
func RenderTable(w io.Writer, rows []stats.CountryStats) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	table.SetHeader([]string{"Country", "Endpoints", "Min (ms)", "Median (ms)", "Average (ms)", "Max (ms)"})
	for _, s := range rows {
		table.Append([]string{
			s.Country,
			strconv.Itoa(s.Count),
			FormatRTT(s.Min, false),
			FormatRTT(s.Median, false),
			FormatRTT(s.Average, false),
			FormatRTT(s.Max, false),
		})
	}

	table.Render()
}

// Table returns the console table as a string, or an empty string when
// there are no rows
func Table(rows []stats.CountryStats) string {
	if len(rows) == 0 {
		return ""
	}

	buf := bytes.NewBuffer(nil)
	RenderTable(buf, rows)
	return buf.String()
}
