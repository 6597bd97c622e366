package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"eodprices/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/prices/:ticker",
				Handler: GetPriceHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/prices/:ticker/refresh",
				Handler: RefreshPriceHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/prices/:ticker/status",
				Handler: PriceStatusHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/health",
				Handler: HealthHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api"),
	)
}
