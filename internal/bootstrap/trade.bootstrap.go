package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/halido/binance-trade-bot/internal/infrastructure"
	"github.com/halido/binance-trade-bot/internal/repository"
	"github.com/halido/binance-trade-bot/internal/service/exchange"
	"github.com/halido/binance-trade-bot/internal/service/executor"
	"github.com/halido/binance-trade-bot/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartTrade executes a single trade from the command line and exits.
// The database is optional here, a missing DSN just skips persistence.
func StartTrade(cmd *cobra.Command, args []string) {
	base, _ := cmd.Flags().GetString("base")
	quote, _ := cmd.Flags().GetString("quote")
	side, _ := cmd.Flags().GetString("side")

	orderSide := entity.OrderSide(strings.ToUpper(strings.TrimSpace(side)))
	if orderSide != entity.OrderSideBuy && orderSide != entity.OrderSideSell {
		logrus.Fatalf("invalid side %q, expected BUY or SELL", side)
	}

	if strings.TrimSpace(base) == "" || strings.TrimSpace(quote) == "" {
		logrus.Fatal("base and quote are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tradeRecordRepo *repository.TradeRecordRepository
	var records executor.TradeRecordStore
	if config.Env.Database["trade_engine"].DSN != "" {
		db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trade_engine"])
		util.ContinueOrFatal(err)
		defer db.Close()

		tradeRecordRepo = repository.NewTradeRecordRepository(db)
		records = tradeRecordRepo
	}

	binanceExchange := exchange.InitBinanceExchange(config.Env.Exchanges[string(entity.ExchangeBinance)])

	redisClient := newRedisClient(config.Env.Redis["trade_engine"].CacheDSN)
	if redisClient != nil {
		defer redisClient.Close()
	}

	filterCache := executor.NewSymbolFilterCache(binanceExchange, redisClient, config.Env.Trade.FilterCacheTTL)
	tradeExecutor := executor.New(binanceExchange, filterCache, records, tradeExecutorConfig())

	req := entity.TradeRequest{
		RequestID:   uuid.NewString(),
		BaseSymbol:  strings.ToUpper(strings.TrimSpace(base)),
		QuoteSymbol: strings.ToUpper(strings.TrimSpace(quote)),
		Side:        orderSide,
		RequestedAt: time.Now().UnixMilli(),
		Source:      "cli",
	}

	record, err := tradeExecutor.Execute(ctx, req)
	if err != nil {
		logrus.WithError(err).Fatal("trade failed")
	}

	fields := logrus.Fields{
		"request_id": record.RequestID,
		"pair":       record.Pair().String(),
		"side":       record.Side,
		"state":      record.State,
		"quantity":   record.OrderedQuantity.String(),
	}
	if record.OrderID.Valid {
		fields["order_id"] = record.OrderID.String
	}
	if record.CumulativeQuoteQuantity != nil {
		fields["cumulative_quote_qty"] = record.CumulativeQuoteQuantity.String()
	}

	logrus.WithFields(fields).Info("trade complete")
}
