package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"signalexecutor/src/database/testdb"
	"signalexecutor/src/repository"
)

func TestCapturePersistsException(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewExceptionRepositoryWithDB(db)
	hook := test.NewGlobal()
	defer hook.Reset()

	id := uint(7)
	Capture(context.Background(), repo, "fleet", "push", "PushOrders", LevelError, &id,
		errors.New("exchange down"), map[string]interface{}{"run_id": "abc"})

	rows, err := repo.ListForSignal(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "exchange down", rows[0].Message)
	require.Equal(t, "push", rows[0].Module)
	require.JSONEq(t, `{"run_id":"abc"}`, rows[0].Context)
	require.NotEmpty(t, rows[0].Stack)

	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Equal(t, uint(7), hook.LastEntry().Data["signal_id"])
}

func TestCaptureWarnLevelAndNilError(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	Capture(context.Background(), nil, "fleet", "form", "FormOrders", LevelWarn, nil, nil, nil)
	require.Empty(t, hook.AllEntries())

	Capture(context.Background(), nil, "fleet", "form", "FormOrders", LevelWarn, nil, errors.New("low balance"), nil)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	_, hasSignal := hook.LastEntry().Data["signal_id"]
	require.False(t, hasSignal)
}
