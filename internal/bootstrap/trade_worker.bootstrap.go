package bootstrap

import (
	"context"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/halido/binance-trade-bot/internal/infrastructure"
	"github.com/halido/binance-trade-bot/internal/repository"
	"github.com/halido/binance-trade-bot/internal/service/exchange"
	"github.com/halido/binance-trade-bot/internal/service/executor"
	"github.com/halido/binance-trade-bot/internal/service/tradeengine"
	"github.com/halido/binance-trade-bot/internal/util"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartTradeWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trade_engine"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["trade_engine"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	redisClient := newRedisClient(config.Env.Redis["trade_engine"].CacheDSN)

	binanceExchange := exchange.InitBinanceExchange(config.Env.Exchanges[string(entity.ExchangeBinance)])
	registeredExchange, ok := exchange.LookupExchange(entity.ExchangeBinance)
	if !ok {
		logrus.Fatal("binance exchange is not registered")
	}

	watchPairs := parseWatchPairs(config.Env.Trade.WatchPairs)
	if len(watchPairs) > 0 {
		go func() {
			if err := binanceExchange.StartTickerStream(ctx, watchPairs); err != nil {
				logrus.WithError(err).Warn("ticker stream unavailable, falling back to rest prices")
			}
		}()
	}

	tradeRecordRepo := repository.NewTradeRecordRepository(db)
	filterCache := executor.NewSymbolFilterCache(registeredExchange, redisClient, config.Env.Trade.FilterCacheTTL)
	tradeExecutor := executor.New(registeredExchange, filterCache, tradeRecordRepo, tradeExecutorConfig())

	tradeEngineService := tradeengine.NewTradeEngineService(tradeExecutor, tradeRecordRepo, js)

	publishers := []entity.Publisher{tradeEngineService}
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	subscribers := []entity.Subscriber{tradeEngineService}
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"redis cache": func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}

func newRedisClient(cacheDSN string) *redis.Client {
	if cacheDSN == "" {
		logrus.Warn("redis cache_dsn is not set, symbol filter cache runs in-memory only")
		return nil
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		logrus.WithError(err).Warn("invalid redis cache_dsn, symbol filter cache runs in-memory only")
		return nil
	}

	return redis.NewClient(options)
}

func tradeExecutorConfig() executor.Config {
	tradeCfg := config.Env.Trade

	return executor.Config{
		SubmitMaxAttempts:       tradeCfg.SubmitMaxAttempts,
		SubmitRetryDelay:        tradeCfg.SubmitRetryDelay,
		SubmitTimeout:           tradeCfg.SubmitTimeout,
		PollInitialDelay:        tradeCfg.PollInitialDelay,
		PollInterval:            tradeCfg.PollInterval,
		PollInitialErrorBackoff: tradeCfg.PollInitialErrorBackoff,
		PollErrorBackoff:        tradeCfg.PollErrorBackoff,
		SettlementInterval:      tradeCfg.SettlementInterval,
		SettlementTimeout:       tradeCfg.SettlementTimeout,
	}
}
