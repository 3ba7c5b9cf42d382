package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ch00k/geoping/internal/stats"
)

var sampleRows = []stats.CountryStats{
	{Country: "NL", Min: 8.5, Median: 10.25, Average: 11.3333333, Max: 15, Count: 3},
	{Country: "DE", Min: 12.0004, Median: 20, Average: 25.5, Max: 44.9999, Count: 4},
}

func TestWriteTSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTSV(&buf, sampleRows, TSVOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := "Country\tMin RTT\tMedian RTT\tAverage RTT\tMax RTT\n" +
		"NL\t8.500\t10.250\t11.333\t15.000\n" +
		"DE\t12.000\t20.000\t25.500\t45.000\n"
	if buf.String() != want {
		t.Errorf("Unexpected TSV:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteTSV_DecimalComma(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTSV(&buf, sampleRows[:1], TSVOptions{DecimalComma: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := "Country\tMin RTT\tMedian RTT\tAverage RTT\tMax RTT\n" +
		"NL\t8,500\t10,250\t11,333\t15,000\n"
	if buf.String() != want {
		t.Errorf("Unexpected TSV:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteTSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTSV(&buf, nil, TSVOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if buf.String() != "Country\tMin RTT\tMedian RTT\tAverage RTT\tMax RTT\n" {
		t.Errorf("Expected header only, got %q", buf.String())
	}
}

func TestWriteTSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultTSVPath)
	if err := os.WriteFile(path, []byte("stale content that is longer than the report\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteTSVFile(path, sampleRows[1:], TSVOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Country\tMin RTT\tMedian RTT\tAverage RTT\tMax RTT\n" +
		"DE\t12.000\t20.000\t25.500\t45.000\n"
	if string(data) != want {
		t.Errorf("Unexpected file content: %q", string(data))
	}
}

func TestWriteTSVFile_BadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.csv")
	if err := WriteTSVFile(path, sampleRows, TSVOptions{}); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestFormatRTT(t *testing.T) {
	tests := []struct {
		ms           float64
		decimalComma bool
		want         string
	}{
		{0, false, "0.000"},
		{1.23456, false, "1.235"},
		{1.23456, true, "1,235"},
		{499.9999, false, "500.000"},
		{123, true, "123,000"},
	}

	for _, tt := range tests {
		if got := FormatRTT(tt.ms, tt.decimalComma); got != tt.want {
			t.Errorf("FormatRTT(%v, %v) = %q, want %q", tt.ms, tt.decimalComma, got, tt.want)
		}
	}
}
