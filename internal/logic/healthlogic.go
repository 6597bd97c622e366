package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/internal/svc"
	"eodprices/internal/types"
)

type HealthLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewHealthLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HealthLogic {
	return &HealthLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Health reports queue depth and provider session state. A blocked session
// degrades the status but the service keeps serving cached data.
func (l *HealthLogic) Health() (*types.HealthResponse, error) {
	resp := &types.HealthResponse{
		Status:     "ok",
		Store:      "memory",
		Sources:    l.svcCtx.Fetcher.Sources(),
		QueueDepth: l.svcCtx.Queue.Len(),
		Jobs:       make(map[string]int),
		Sessions:   make([]types.SessionState, 0, len(l.svcCtx.Sessions)),
	}
	if l.svcCtx.DBConn != nil {
		resp.Store = "postgres"
	}
	for status, n := range l.svcCtx.Queue.Counts() {
		resp.Jobs[string(status)] = n
	}
	for _, name := range l.svcCtx.SessionNames() {
		st := l.svcCtx.Sessions[name].Snapshot()
		state := types.SessionState{Provider: name, HasSession: st.HasSession, Blocked: st.Blocked}
		if st.Blocked {
			state.BlockedUntil = st.BlockedUntil.UTC().Format(time.RFC3339)
			resp.Status = "degraded"
		}
		resp.Sessions = append(resp.Sessions, state)
	}
	return resp, nil
}
