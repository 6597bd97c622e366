package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/rest"

	"eodprices/internal/cli"
	"eodprices/internal/config"
	"eodprices/internal/handler"
	"eodprices/internal/svc"
)

var configFile = flag.String("f", "etc/eodprices.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	cli.LogConfigSummary(cfg)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	ctx := svc.NewServiceContext(*cfg)
	handler.RegisterHandlers(server, ctx)

	workerCtx, cancel := context.WithCancel(context.Background())
	proc.AddShutdownListener(cancel)
	defer cancel()
	go func() {
		if err := ctx.Worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Errorf("price worker exited: %v", err)
		}
	}()

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
