package pricepersist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportFile is the per-ticker document read by processes that do not open the database.
type ExportFile struct {
	Ticker      string        `json:"ticker"`
	GeneratedAt time.Time     `json:"generatedAt"`
	MarketCap   *float64      `json:"marketCap,omitempty"`
	Currency    string        `json:"currency,omitempty"`
	Points      []ExportPoint `json:"points"`
}

// ExportPoint is one retained close, oldest first.
type ExportPoint struct {
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Source string  `json:"source"`
}

// Exporter writes one JSON file per ticker under dir.
type Exporter struct {
	dir   string
	nowFn func() time.Time
}

// NewExporter constructs an exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = "prices"
	}
	return &Exporter{dir: dir, nowFn: time.Now}
}

// Dir returns the export root.
func (e *Exporter) Dir() string { return e.dir }

// Path returns the export file path of ticker.
func (e *Exporter) Path(ticker string) string {
	return filepath.Join(e.dir, strings.ToUpper(ticker)+".json")
}

// Write replaces the export file of ticker with records, which must be in
// ascending date order. The file is swapped in atomically.
func (e *Exporter) Write(ticker string, records []Record) (string, error) {
	if e == nil {
		return "", nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("pricepersist: export dir: %w", err)
	}
	doc := ExportFile{
		Ticker:      strings.ToUpper(ticker),
		GeneratedAt: e.nowFn().UTC(),
		Points:      make([]ExportPoint, 0, len(records)),
	}
	for _, r := range records {
		doc.Points = append(doc.Points, ExportPoint{Date: r.Date, Close: r.Close, Source: r.Source})
		if r.MarketCap != nil {
			doc.MarketCap = r.MarketCap
		}
		if r.Currency != "" {
			doc.Currency = r.Currency
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}

	path := e.Path(ticker)
	tmp, err := os.CreateTemp(e.dir, ".export-*.json")
	if err != nil {
		return "", fmt.Errorf("pricepersist: export temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pricepersist: export write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pricepersist: export close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pricepersist: export rename: %w", err)
	}
	return path, nil
}

// Read loads the export file of ticker.
func (e *Exporter) Read(ticker string) (*ExportFile, error) {
	data, err := os.ReadFile(e.Path(ticker))
	if err != nil {
		return nil, err
	}
	var doc ExportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pricepersist: decode export %s: %w", ticker, err)
	}
	return &doc, nil
}
