package constant

const (
	ProductionEnvironment = "production"

	TradeEngineQueueName  = "trade_engine_queue"
	TradeEngineQueueGroup = "trade_engine_group"

	TradeEngineStreamName           = "trade_engine"
	TradeEngineStreamSubjectAll     = "trade_engine.*"
	TradeEngineStreamSubjectExecute = "trade_engine.execute"
)
