package yahoo

import (
	"time"

	"eodprices/pkg/market"
)

// exchangeDate converts a unix timestamp to the exchange's local calendar date.
func exchangeDate(unix, gmtOffsetSeconds int64) string {
	if unix <= 0 {
		return ""
	}
	return market.FormatDate(time.Unix(unix+gmtOffsetSeconds, 0).UTC())
}

func chartPoints(res *chartResult) []market.Point {
	if res == nil || len(res.Indicators.Quote) == 0 {
		return nil
	}
	closes := res.Indicators.Quote[0].Close
	points := make([]market.Point, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		c, ok := market.PositiveFloat(*closes[i])
		if !ok {
			continue
		}
		date := exchangeDate(ts, res.Meta.GMTOffset)
		if date == "" {
			continue
		}
		points = append(points, market.Point{Date: date, Close: c})
	}
	return market.SortPoints(points)
}

func quoteSnapshot(res *quoteResult) *snapshot {
	if res == nil {
		return nil
	}
	snap := &snapshot{
		Date:     exchangeDate(res.RegularMarketTime, res.GMTOffSetMilliseconds/1000),
		Currency: res.Currency,
	}
	if res.MarketCap != nil {
		if v, ok := market.PositiveFloat(*res.MarketCap); ok {
			snap.MarketCap = &v
		}
	}
	if res.RegularMarketPrice != nil {
		if v, ok := market.PositiveFloat(*res.RegularMarketPrice); ok {
			snap.Close = v
		}
	}
	return snap
}

// merge combines chart history with the quote snapshot. History comes from the
// chart; the quote's close wins for its own trading day and extends the series
// when it is newer than the chart's last point.
func merge(history []market.Point, snap *snapshot) *market.Observation {
	points := append([]market.Point(nil), history...)
	obs := &market.Observation{}
	if snap != nil {
		obs.MarketCap = snap.MarketCap
		obs.Currency = snap.Currency
		if snap.Close > 0 && snap.Date != "" {
			n := len(points)
			switch {
			case n == 0 || snap.Date > points[n-1].Date:
				points = append(points, market.Point{Date: snap.Date, Close: snap.Close})
			case snap.Date == points[n-1].Date:
				points[n-1].Close = snap.Close
			}
		}
	}
	if len(points) == 0 {
		return nil
	}
	last := points[len(points)-1]
	obs.Date = last.Date
	obs.Close = last.Close
	obs.History = points
	return obs
}
