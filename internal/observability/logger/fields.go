package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field         { return zap.String("request_id", v) }
func Method(v string) zap.Field            { return zap.String("method", v) }
func Path(v string) zap.Field              { return zap.String("path", v) }
func Status(v int) zap.Field               { return zap.Int("status", v) }
func DurationMs(v time.Duration) zap.Field { return zap.Int64("duration_ms", v.Milliseconds()) }

// ─── Dominio ───

func TenancyID(v string) zap.Field  { return zap.String("tenancy_id", v) }
func UserID(v string) zap.Field     { return zap.String("user_id", v) }
func ProviderID(v string) zap.Field { return zap.String("provider_id", v) }
func Flow(v string) zap.Field       { return zap.String("flow", v) }
func Outcome(v string) zap.Field    { return zap.String("outcome", v) }
func ErrorCode(v string) zap.Field  { return zap.String("error_code", v) }

// StateMasked loguea solo un prefijo del inner state: es un secreto de correlación.
func StateMasked(v string) zap.Field {
	if len(v) <= 6 {
		return zap.String("state", "***")
	}
	return zap.String("state", v[:6]+"***")
}

// EmailMasked muestra los dos primeros caracteres y el dominio.
func EmailMasked(v string) zap.Field {
	return zap.String("email_masked", MaskEmail(v))
}

// MaskEmail enmascara un email para logs ("ab***@example.com").
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	switch {
	case len(email) < 3:
		return "***"
	case at < 2:
		return email[:2] + "***"
	default:
		return email[:2] + "***" + email[at:]
	}
}

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// ─── Genéricos ───

func String(key, v string) zap.Field           { return zap.String(key, v) }
func Int(key string, v int) zap.Field          { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field        { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field          { return zap.Any(key, v) }
func Strings(key string, v []string) zap.Field { return zap.Strings(key, v) }
