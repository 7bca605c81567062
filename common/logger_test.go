package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_SetsLevelAndFormat(t *testing.T) {
	cfg := DefaultLoggerConfig()
	cfg.Level = LogLevelDebug
	cfg.Format = "json"

	logger := NewLogger(cfg)
	assert.Equal(t, "debug", logger.GetLevel().String())
	_, isSplitter := logger.Out.(*OutputSplitter)
	assert.True(t, isSplitter)
}

func TestContextLogger_WithFieldIsImmutable(t *testing.T) {
	base := NewContextLogger(NewLogger(DefaultLoggerConfig()), map[string]interface{}{"service": "engine"})
	child := base.WithField("txn_id", 1)

	assert.NotContains(t, base.fields, "txn_id")
	assert.Equal(t, 1, child.fields["txn_id"])
	assert.Equal(t, "engine", child.fields["service"])
}

func TestContextLogger_WithErrorAddsErrorField(t *testing.T) {
	cl := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)
	withErr := cl.WithError(errors.New("boom"))
	assert.Equal(t, "boom", withErr.fields["error"])
}

func TestServiceLogger_CarriesServiceAndEngineVersion(t *testing.T) {
	cl := ServiceLogger("themisgo-demo", "1.2.3")
	assert.Equal(t, "themisgo-demo", cl.fields["service"])
	assert.Equal(t, "1.2.3", cl.fields["version"])
	assert.Contains(t, cl.fields, "engine_version")
}

func TestLogOperation_ReturnsUnderlyingError(t *testing.T) {
	cl := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)
	wantErr := errors.New("write failed")

	err := LogOperation(cl, "write", func() error { return wantErr })
	require.Error(t, err)
	assert.Equal(t, wantErr, err)
}

func TestLogOperation_ReturnsNilOnSuccess(t *testing.T) {
	cl := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)
	called := false

	err := LogOperation(cl, "write", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLogDuration_ReturnsCallableStopFunc(t *testing.T) {
	cl := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)
	stop := LogDuration(cl, "search-knn")
	assert.NotPanics(t, stop)
}

func TestLogPanic_RecoversAndLogs(t *testing.T) {
	cl := NewContextLogger(NewLogger(DefaultLoggerConfig()), nil)

	func() {
		defer LogPanic(cl)
		panic("boom")
	}()
	// reaching this line proves LogPanic recovered the panic
}

func TestDatabaseFields_ReportsOperationAndTable(t *testing.T) {
	fields := DatabaseFields("put", "users", 2, 0)
	assert.Equal(t, "put", fields["db_operation"])
	assert.Equal(t, "users", fields["db_table"])
	assert.Equal(t, int64(2), fields["rows_affected"])
}

func TestErrorFields_IncludesErrorTypeAndContext(t *testing.T) {
	fields := ErrorFields(errors.New("boom"), "create-index")
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "create-index", fields["context"])
	assert.Equal(t, "*errors.errorString", fields["error_type"])
}

func TestStructuredLog_BuildsFieldsAndLevel(t *testing.T) {
	sl := NewStructuredLog(NewLogger(DefaultLoggerConfig())).
		WithField("begun", 3).
		Level(LogLevelWarn)

	assert.Equal(t, 3, sl.fields["begun"])
	assert.Equal(t, "warning", sl.level.String())
	assert.NotPanics(t, func() { sl.Log("stats") })
}
