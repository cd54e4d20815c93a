package tradeengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/constant"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/halido/binance-trade-bot/internal/repository"
	"github.com/halido/binance-trade-bot/internal/service/executor"
	"github.com/halido/binance-trade-bot/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrExecuteTradeFailed      = errors.New("failed to execute trade")
	ErrDuplicateTrade          = errors.New("duplicate trade request")
	ErrTradeLookupFailed       = errors.New("failed to look up trade record")
	ErrPublishTradeEventFailed = errors.New("failed to publish trade event")
)

// TradeEngineService fronts the trade executor: synchronous execution for
// the CLI and gateway, and a JetStream work queue for asynchronous intake.
// Duplicate request IDs are refused so a redelivered event can never submit
// a second order for the same intent.
type TradeEngineService struct {
	executor        *executor.TradeExecutor
	tradeRecordRepo *repository.TradeRecordRepository
	js              nats.JetStreamContext
}

func NewTradeEngineService(tradeExecutor *executor.TradeExecutor, tradeRecordRepo *repository.TradeRecordRepository, js nats.JetStreamContext) *TradeEngineService {
	return &TradeEngineService{
		executor:        tradeExecutor,
		tradeRecordRepo: tradeRecordRepo,
		js:              js,
	}
}

func (s *TradeEngineService) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.TradeEngineStreamName,
		Subjects:  []string{constant.TradeEngineStreamSubjectAll},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := s.js.StreamInfo(constant.TradeEngineStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.TradeEngineStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.TradeEngineStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (s *TradeEngineService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.TradeEngineStreamSubjectExecute,
		constant.TradeEngineQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["execute_trade"], msg, s.handleExecuteTradeEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.TradeEngineQueueGroup),
	)
	util.ContinueOrFatal(err)

	return nil
}

func (s *TradeEngineService) handleExecuteTradeEvent(ctx context.Context, msg *nats.Msg) error {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.TradeRequestEvent
	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Error(err)
		return err
	}

	_, err = s.Execute(ctx, req.Data)
	if err == nil {
		return nil
	}
	logger.Error(err)

	if !retryableTradeError(err) {
		return nil
	}

	req.RetryCount++
	if req.RetryCount >= config.Env.NatsJetstream.MaxRetries {
		logger.Warnf("dropping trade event after %d attempts", req.RetryCount)
		return nil
	}

	// hand the retry to a fresh event and ack this delivery, so only one
	// copy of the request is ever in flight. Failing to enqueue the fresh
	// copy leaves this delivery unacked for the server to redeliver.
	if publishErr := util.PublishEvent(s.js, constant.TradeEngineStreamSubjectExecute, req); publishErr != nil {
		logger.Error(publishErr)
		return publishErr
	}

	return nil
}

// Execute runs a trade request to completion, refusing request IDs that
// already produced an order.
func (s *TradeEngineService) Execute(ctx context.Context, req entity.TradeRequest) (*entity.TradeRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if s.tradeRecordRepo != nil && req.RequestID != "" {
		existing, err := s.tradeRecordRepo.GetByRequestID(ctx, req.RequestID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			logrus.Error(err)
			return nil, ErrTradeLookupFailed
		}

		if existing != nil {
			logrus.Warnf("duplicate trade request: %s %s, request ID: %s", req.Side, req.Pair().String(), req.RequestID)
			return nil, ErrDuplicateTrade
		}
	}

	if s.executor == nil {
		return nil, fmt.Errorf("%w: no executor attached", ErrExecuteTradeFailed)
	}

	record, err := s.executor.Execute(ctx, req)
	if err != nil {
		return record, fmt.Errorf("%w: %w", ErrExecuteTradeFailed, err)
	}

	return record, nil
}

// ExecuteAsync enqueues a trade request on the work queue and returns
// immediately.
func (s *TradeEngineService) ExecuteAsync(ctx context.Context, req entity.TradeRequest) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	event := entity.TradeRequestEvent{
		RetryCount: 0,
		Data:       req,
	}

	err := util.PublishEvent(s.js, constant.TradeEngineStreamSubjectExecute, event)
	if err != nil {
		logrus.Error(err)
		return ErrPublishTradeEventFailed
	}

	return nil
}

func (s *TradeEngineService) GetTradeRecord(ctx context.Context, requestID string) (*entity.TradeRecord, error) {
	if s.tradeRecordRepo == nil {
		return nil, sql.ErrNoRows
	}
	return s.tradeRecordRepo.GetByRequestID(ctx, requestID)
}

// ListTradeRecords returns records in the given lifecycle states, newest
// first. Used to find trades stranded mid-flight after a worker restart.
func (s *TradeEngineService) ListTradeRecords(ctx context.Context, states []string) ([]entity.TradeRecord, error) {
	if s.tradeRecordRepo == nil {
		return []entity.TradeRecord{}, nil
	}
	return s.tradeRecordRepo.GetByState(ctx, states)
}

// retryableTradeError decides whether a failed event is worth redelivering.
// Sizing violations, unknown symbols and terminally rejected orders cannot
// succeed on a retry.
func retryableTradeError(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateTrade),
		errors.Is(err, executor.ErrBelowMinNotional),
		errors.Is(err, executor.ErrOrderTerminal):
		return false
	}

	return entity.IsRetryable(err)
}
