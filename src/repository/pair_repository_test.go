package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"signalexecutor/src/database/testdb"
	"signalexecutor/src/model"
)

func TestPairRepositoryUpsertOverwritesRules(t *testing.T) {
	db := testdb.Open(t)
	repo := NewPairRepositoryWithDB(db)
	ctx := context.Background()

	pair := &model.Pair{
		Symbol:       "btcusdt",
		Market:       "binance",
		StepPrice:    decimal.RequireFromString("0.01"),
		StepQuantity: decimal.RequireFromString("0.001"),
		MinAmount:    decimal.NewFromInt(5),
	}
	require.NoError(t, repo.Upsert(ctx, pair))

	updated := &model.Pair{
		Symbol:       "BTCUSDT",
		Market:       "binance",
		StepPrice:    decimal.RequireFromString("0.1"),
		StepQuantity: decimal.RequireFromString("0.001"),
		MinAmount:    decimal.NewFromInt(10),
	}
	require.NoError(t, repo.Upsert(ctx, updated))

	found, err := repo.FindBySymbol(ctx, "BTCUSDT", "binance")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.True(t, found.StepPrice.Equal(decimal.RequireFromString("0.1")))
	require.True(t, found.MinAmount.Equal(decimal.NewFromInt(10)))

	all, err := repo.ListByMarket(ctx, "binance")
	require.NoError(t, err)
	require.Len(t, all, 1)

	missing, err := repo.FindBySymbol(ctx, "BTCUSDT", "paper")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestIngestCursorRepository(t *testing.T) {
	db := testdb.Open(t)
	repo := NewIngestCursorRepositoryWithDB(db)
	ctx := context.Background()

	last, err := repo.Get(ctx, "parsed_signals")
	require.NoError(t, err)
	require.Zero(t, last)

	require.NoError(t, repo.Save(ctx, "parsed_signals", 12))
	require.NoError(t, repo.Save(ctx, "parsed_signals", 15))

	last, err = repo.Get(ctx, "parsed_signals")
	require.NoError(t, err)
	require.EqualValues(t, 15, last)
}
