package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
)

func TestRecord(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).With(logger.TenancyID("t1")))

	Record(ctx, UserCreated, logger.UserID("u1"))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "audit", e.LoggerName)
	assert.Equal(t, string(UserCreated), e.Message)
	fields := e.ContextMap()
	assert.Equal(t, true, fields["audit"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "t1", fields["tenancy_id"])
}
