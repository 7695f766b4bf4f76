// Package audit records identity changes (user creation, anonymous upgrades,
// account links) as structured events on the "audit" logger. They share the
// zap sink and can be filtered by audit=true.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
)

type Event string

const (
	UserCreated          Event = "user.created"
	UserUpgraded         Event = "user.upgraded"
	AccountLinked        Event = "provider_account.linked"
	AccountLinkedByEmail Event = "provider_account.linked_via_email"
)

// Record emits ev with the fields already on the context logger.
func Record(ctx context.Context, ev Event, fields ...zap.Field) {
	base := []zap.Field{zap.Bool("audit", true), zap.String("event", string(ev))}
	logger.From(ctx).Named("audit").Info(string(ev), append(base, fields...)...)
}
