package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/halido/binance-trade-bot/internal/config"
	httpHandler "github.com/halido/binance-trade-bot/internal/handler/tradeengine/http"
	"github.com/halido/binance-trade-bot/internal/infrastructure"
	"github.com/halido/binance-trade-bot/internal/repository"
	"github.com/halido/binance-trade-bot/internal/service/tradeengine"
	"github.com/halido/binance-trade-bot/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartTradeGateway serves the HTTP surface only. Trade requests are
// published to jetstream and picked up by a trade worker.
func StartTradeGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trade_engine"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["trade_engine"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	tradeRecordRepo := repository.NewTradeRecordRepository(db)
	tradeEngineService := tradeengine.NewTradeEngineService(nil, tradeRecordRepo, js)

	err = tradeEngineService.JetstreamEventInit(ctx)
	util.ContinueOrFatal(err)

	tradeEngineHTTPHandler := httpHandler.NewTradeEngineHTTPHandler(tradeEngineService)
	httpMux := http.NewServeMux()
	tradeEngineHTTPHandler.Register(httpMux)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["trade_gateway_http"])
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
