// Package report writes aggregated RTT statistics to files, the console and SQLite.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/Ch00k/geoping/internal/stats"
)

// DefaultTSVPath is the default TSV report file
const DefaultTSVPath = "rtt_result.csv"

var tsvHeader = []string{"Country", "Min RTT", "Median RTT", "Average RTT", "Max RTT"}

// TSVOptions configures the TSV report
type TSVOptions struct {
	// DecimalComma writes values with ',' as the decimal separator
	DecimalComma bool
}

// WriteTSV writes one tab-separated row per country, in the given order
func WriteTSV(w io.Writer, rows []stats.CountryStats, opts TSVOptions) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(tsvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range rows {
		record := []string{
			s.Country,
			FormatRTT(s.Min, opts.DecimalComma),
			FormatRTT(s.Median, opts.DecimalComma),
			FormatRTT(s.Average, opts.DecimalComma),
			FormatRTT(s.Max, opts.DecimalComma),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", s.Country, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTSVFile writes the TSV report to path, replacing any existing file
func WriteTSVFile(path string, rows []stats.CountryStats, opts TSVOptions) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand report path %q: %w", path, err)
	}

	f, err := os.Create(expanded)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := WriteTSV(f, rows, opts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FormatRTT formats milliseconds with three decimals
func FormatRTT(ms float64, decimalComma bool) string {
	s := strconv.FormatFloat(ms, 'f', 3, 64)
	if decimalComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}
