package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/jmoiron/sqlx"
)

type TradeRecordRepository struct {
	db *sqlx.DB
}

func NewTradeRecordRepository(db *sqlx.DB) *TradeRecordRepository {
	return &TradeRecordRepository{db: db}
}

func (r *TradeRecordRepository) Create(ctx context.Context, record *entity.TradeRecord) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(record.TableName()).
		Columns(
			"request_id",
			"base_symbol",
			"quote_symbol",
			"side",
			"state",
			"order_id",
			"pre_trade_base_balance",
			"pre_trade_quote_balance",
			"ordered_quantity",
			"cumulative_quote_quantity",
			"ordered_at",
			"completed_at",
			"created_at",
			"updated_at",
		).
		Values(
			record.RequestID,
			record.BaseSymbol,
			record.QuoteSymbol,
			record.Side,
			record.State,
			record.OrderID,
			record.PreTradeBaseBalance,
			record.PreTradeQuoteBalance,
			record.OrderedQuantity,
			record.CumulativeQuoteQuantity,
			record.OrderedAt,
			record.CompletedAt,
			record.CreatedAt,
			record.UpdatedAt,
		).
		Suffix("RETURNING id")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	record.ID = id

	return err
}

func (r *TradeRecordRepository) Update(ctx context.Context, record *entity.TradeRecord) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(record.TableName()).
		Set("state", record.State).
		Set("order_id", record.OrderID).
		Set("pre_trade_base_balance", record.PreTradeBaseBalance).
		Set("pre_trade_quote_balance", record.PreTradeQuoteBalance).
		Set("ordered_quantity", record.OrderedQuantity).
		Set("cumulative_quote_quantity", record.CumulativeQuoteQuantity).
		Set("ordered_at", record.OrderedAt).
		Set("completed_at", record.CompletedAt).
		Set("updated_at", record.UpdatedAt).
		Where(sq.Eq{"id": record.ID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *TradeRecordRepository) GetByRequestID(ctx context.Context, requestID string) (*entity.TradeRecord, error) {
	var record entity.TradeRecord
	err := r.db.GetContext(ctx, &record, "SELECT * FROM trade_records WHERE request_id = $1", requestID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *TradeRecordRepository) GetByState(ctx context.Context, states []string) ([]entity.TradeRecord, error) {
	if len(states) == 0 {
		return []entity.TradeRecord{}, nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("trade_records").
		Where(sq.Eq{"state": states}).
		OrderBy("created_at desc")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var records []entity.TradeRecord
	err = r.db.SelectContext(ctx, &records, query, args...)
	if err != nil {
		return nil, err
	}

	return records, nil
}
