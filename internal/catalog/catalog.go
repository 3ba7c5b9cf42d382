// Package catalog loads the endpoint catalog: endpoints grouped by the country they claim.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/logging"
)

// FileExtension is the extension of per-country catalog files.
const FileExtension = ".json"

// Endpoint is a single probe target as listed in the catalog
type Endpoint struct {
	Name    string // city-like label, may be empty
	Address string // textual IPv4 or IPv6 address, validated by the prober
	Country string // claimed two-letter country code, upper-case
}

// Catalog maps a claimed country code to its endpoints in catalog order
type Catalog map[string][]Endpoint

// Entry is one element of a per-country catalog file
type Entry struct {
	IP   string `json:"ip"`
	City string `json:"city"`
}

// Count returns the total number of endpoints in the catalog.
func (c Catalog) Count() int {
	var n int
	for _, endpoints := range c {
		n += len(endpoints)
	}
	return n
}

// Countries returns the country codes in ascending order.
func (c Catalog) Countries() []string {
	countries := make([]string, 0, len(c))
	for cc := range c {
		countries = append(countries, cc)
	}
	slices.Sort(countries)
	return countries
}

// CountryFromPath derives the country code from a catalog file name: "de.json" -> "DE".
func CountryFromPath(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return strings.ToUpper(name)
}

// ParseFile reads one per-country catalog file
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// LoadDir loads every <country>.json file in dir into a Catalog.
// Entries without an address are skipped; address syntax is not checked here.
func LoadDir(dir string, logger *zap.SugaredLogger) (Catalog, error) {
	logger = logging.OrNop(logger)

	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand catalog directory %q: %w", dir, err)
	}

	files, err := os.ReadDir(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	logger.Debugw("Reading catalog", "dir", expanded)

	cat := make(Catalog)
	var skipped int
	for _, f := range files {
		if !f.Type().IsRegular() || filepath.Ext(f.Name()) != FileExtension {
			continue
		}

		path := filepath.Join(expanded, f.Name())
		entries, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		cc := CountryFromPath(path)
		endpoints := cat[cc]
		for _, e := range entries {
			addr := strings.TrimSpace(e.IP)
			if addr == "" {
				skipped++
				continue
			}
			endpoints = append(endpoints, Endpoint{
				Name:    e.City,
				Address: addr,
				Country: cc,
			})
		}
		cat[cc] = endpoints
	}

	if skipped > 0 {
		logger.Warnw("Skipped catalog entries without an address", "count", skipped)
	}
	logger.Infow("Loaded catalog", "dir", expanded, "countries", len(cat), "endpoints", cat.Count())

	return cat, nil
}
