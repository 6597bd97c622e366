package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/internal/svc"
	"eodprices/internal/types"
	"eodprices/pkg/market"
)

// StatusUnknown is reported for tickers that were never queued.
const StatusUnknown = "unknown"

type PriceStatusLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewPriceStatusLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PriceStatusLogic {
	return &PriceStatusLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *PriceStatusLogic) PriceStatus(req *types.TickerRequest) (*types.JobResponse, error) {
	ticker := market.NormalizeTicker(req.Ticker)
	if !market.ValidTicker(ticker) {
		return nil, ErrInvalidTicker
	}
	return jobResponse(l.svcCtx, ticker), nil
}

func jobResponse(svcCtx *svc.ServiceContext, ticker string) *types.JobResponse {
	job, ok := svcCtx.Prices.Status(ticker)
	if !ok {
		return &types.JobResponse{Ticker: ticker, Status: StatusUnknown}
	}
	return &types.JobResponse{
		Ticker:    job.Ticker,
		Status:    string(job.Status),
		Reason:    job.Reason,
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
