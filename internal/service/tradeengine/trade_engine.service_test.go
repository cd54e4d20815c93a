package tradeengine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/constant"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/halido/binance-trade-bot/internal/service/executor"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMaxRetries(t *testing.T, maxRetries int) {
	t.Helper()
	previous := config.Env
	config.Env = &config.EnvConfig{
		NatsJetstream: config.NatsJetstreamConfig{MaxRetries: maxRetries},
	}
	t.Cleanup(func() { config.Env = previous })
}

// fakeJetStream records published payloads; the embedded interface stays nil
// because only Publish is exercised.
type fakeJetStream struct {
	nats.JetStreamContext

	published  [][]byte
	publishErr error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, data)
	return &nats.PubAck{Stream: constant.TradeEngineStreamName}, nil
}

func executeEventPayload(t *testing.T, retryCount int) *nats.Msg {
	t.Helper()
	payload, err := json.Marshal(entity.TradeRequestEvent{
		RetryCount: retryCount,
		Data: entity.TradeRequest{
			RequestID:   "req-evt-1",
			BaseSymbol:  "XLM",
			QuoteSymbol: "BTC",
			Side:        entity.OrderSideSell,
		},
	})
	require.NoError(t, err)
	return &nats.Msg{Subject: constant.TradeEngineStreamSubjectExecute, Data: payload}
}

func TestHandleExecuteTradeEventRepublishesRetryableFailure(t *testing.T) {
	setMaxRetries(t, 3)
	js := &fakeJetStream{}
	// no executor attached: execution fails with an error worth retrying
	service := NewTradeEngineService(nil, nil, js)

	err := service.handleExecuteTradeEvent(context.Background(), executeEventPayload(t, 0))
	require.NoError(t, err, "delivery must be acked once the retry copy is enqueued")

	require.Len(t, js.published, 1)
	var republished entity.TradeRequestEvent
	require.NoError(t, json.Unmarshal(js.published[0], &republished))
	assert.Equal(t, 1, republished.RetryCount)
	assert.Equal(t, "req-evt-1", republished.Data.RequestID)
}

func TestHandleExecuteTradeEventStopsAfterMaxRetries(t *testing.T) {
	setMaxRetries(t, 3)
	js := &fakeJetStream{}
	service := NewTradeEngineService(nil, nil, js)

	err := service.handleExecuteTradeEvent(context.Background(), executeEventPayload(t, 2))
	require.NoError(t, err)
	assert.Empty(t, js.published)
}

func TestHandleExecuteTradeEventKeepsDeliveryWhenRepublishFails(t *testing.T) {
	setMaxRetries(t, 3)
	js := &fakeJetStream{publishErr: assert.AnError}
	service := NewTradeEngineService(nil, nil, js)

	err := service.handleExecuteTradeEvent(context.Background(), executeEventPayload(t, 0))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestHandleExecuteTradeEventRejectsBadPayload(t *testing.T) {
	setMaxRetries(t, 3)
	js := &fakeJetStream{}
	service := NewTradeEngineService(nil, nil, js)

	err := service.handleExecuteTradeEvent(context.Background(), &nats.Msg{Data: []byte("{not json")})
	require.Error(t, err)
	assert.Empty(t, js.published)
}

func TestRetryableTradeError(t *testing.T) {
	assert.False(t, retryableTradeError(ErrDuplicateTrade))
	assert.False(t, retryableTradeError(executor.ErrBelowMinNotional))
	assert.False(t, retryableTradeError(executor.ErrOrderTerminal))
	assert.False(t, retryableTradeError(entity.NewExchangeError(entity.ExchangeErrorRejected, -2010, "insufficient balance")))
	assert.True(t, retryableTradeError(entity.NewTransportError(assert.AnError)))
	assert.True(t, retryableTradeError(assert.AnError))
}
