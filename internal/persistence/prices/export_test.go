package pricepersist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "prices")
	exporter := NewExporter(dir)
	exporter.nowFn = fixedClock(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	mcap := 3.0e12

	path, err := exporter.Write("aapl", []Record{
		{Ticker: "AAPL", Date: "2024-01-01", Close: 149, Source: "stooq"},
		{Ticker: "AAPL", Date: "2024-01-02", Close: 150, Source: "yahoo", MarketCap: &mcap, Currency: "USD"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AAPL.json"), path)

	doc, err := exporter.Read("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", doc.Ticker)
	assert.True(t, doc.GeneratedAt.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, doc.MarketCap)
	assert.Equal(t, mcap, *doc.MarketCap)
	assert.Equal(t, "USD", doc.Currency)
	assert.Equal(t, []ExportPoint{
		{Date: "2024-01-01", Close: 149, Source: "stooq"},
		{Date: "2024-01-02", Close: 150, Source: "yahoo"},
	}, doc.Points)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestExporterOverwrites(t *testing.T) {
	exporter := NewExporter(t.TempDir())
	_, err := exporter.Write("AAPL", []Record{{Date: "2024-01-01", Close: 1, Source: "yahoo"}})
	require.NoError(t, err)
	_, err = exporter.Write("AAPL", nil)
	require.NoError(t, err)

	doc, err := exporter.Read("AAPL")
	require.NoError(t, err)
	assert.Empty(t, doc.Points)
}

func TestExporterReadMissing(t *testing.T) {
	exporter := NewExporter(t.TempDir())
	_, err := exporter.Read("NOPE")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNilExporterWriteIsNoop(t *testing.T) {
	var exporter *Exporter
	path, err := exporter.Write("AAPL", nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}
