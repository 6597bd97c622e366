package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/internal/svc"
	"eodprices/internal/types"
	"eodprices/pkg/market"
)

type GetPriceLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetPriceLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetPriceLogic {
	return &GetPriceLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// GetPrice serves the cached series, scheduling a refresh when it is stale.
func (l *GetPriceLogic) GetPrice(req *types.TickerRequest) (*types.PriceResponse, error) {
	ticker := market.NormalizeTicker(req.Ticker)
	if !market.ValidTicker(ticker) {
		return nil, ErrInvalidTicker
	}

	res := l.svcCtx.Prices.GetOrFetch(l.ctx, ticker)
	resp := &types.PriceResponse{
		Ticker:    res.Ticker,
		State:     string(res.State),
		Close:     res.Close,
		Date:      res.Date,
		Source:    res.Source,
		MarketCap: res.MarketCap,
		Currency:  res.Currency,
		Series:    make([]types.PricePoint, 0, len(res.Series)),
	}
	if !res.UpdatedAt.IsZero() {
		resp.UpdatedAt = res.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, p := range res.Series {
		resp.Series = append(resp.Series, types.PricePoint{Date: p.Date, Close: p.Close})
	}
	return resp, nil
}
