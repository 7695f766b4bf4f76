// Package logger expone un logger zap singleton con scoping por contexto.
//
// Init se llama una vez desde main; los handlers y servicios obtienen el
// logger del request con From(ctx), que ya trae request_id, method y path
// inyectados por el middleware de logging.
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("callback.resolver"))
//	log.Info("account resolved", logger.TenancyID(tid), logger.Outcome("existing_user"))
//
// Los valores sensibles (inner state, códigos, tokens, emails) nunca se
// loguean en claro: usar StateMasked y EmailMasked.
package logger
