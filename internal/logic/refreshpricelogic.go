package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/internal/svc"
	"eodprices/internal/types"
	"eodprices/pkg/market"
)

type RefreshPriceLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewRefreshPriceLogic(ctx context.Context, svcCtx *svc.ServiceContext) *RefreshPriceLogic {
	return &RefreshPriceLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// RefreshPrice queues a fetch regardless of freshness.
func (l *RefreshPriceLogic) RefreshPrice(req *types.TickerRequest) (*types.JobResponse, error) {
	ticker := market.NormalizeTicker(req.Ticker)
	if !market.ValidTicker(ticker) {
		return nil, ErrInvalidTicker
	}
	status := l.svcCtx.Prices.Enqueue(ticker)
	l.Infof("refresh requested ticker=%s status=%s", ticker, status)
	return jobResponse(l.svcCtx, ticker), nil
}
