package market

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used for trading days.
const DateLayout = "2006-01-02"

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,14}$`)

// NormalizeTicker upper-cases and trims a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ValidTicker reports whether a normalized ticker is acceptable as a cache key.
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// SymbolVariants returns the ticker followed by its share-class spelling
// variants: BRK-B also tries BRK.B and vice versa.
func SymbolVariants(ticker string) []string {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil
	}
	variants := []string{ticker}
	switch {
	case strings.Contains(ticker, "-"):
		variants = append(variants, strings.ReplaceAll(ticker, "-", "."))
	case strings.Contains(ticker, "."):
		variants = append(variants, strings.ReplaceAll(ticker, ".", "-"))
	}
	return variants
}

// PositiveFloat returns v when it is finite and strictly positive.
func PositiveFloat(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// ParsePositive parses s as a finite positive number; anything else is absent.
func ParsePositive(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return PositiveFloat(v)
}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// FormatDate formats t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// SortPoints orders points by ascending date, keeping the last value seen for a
// duplicated date.
func SortPoints(points []Point) []Point {
	byDate := make(map[string]float64, len(points))
	for _, p := range points {
		byDate[p.Date] = p.Close
	}
	out := make([]Point, 0, len(byDate))
	for date, c := range byDate {
		out = append(out, Point{Date: date, Close: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TrimHistory keeps the most recent n points of an ascending series; n <= 0 keeps all.
func TrimHistory(points []Point, n int) []Point {
	if n <= 0 || len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
