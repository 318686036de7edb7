// Package audit emits structured audit events for security-relevant
// actions: registrations, logins, second-factor changes, token refresh,
// password changes and order events.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/Iradukunda-Fils/microservices-demo/internal/token"

	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
)

// LogEvent writes an audit entry enriched with the caller identity when
// one is attached to the context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	log := obs.Logger()
	entry := log.Info().Str("type", "audit").Str("event", event)
	if caller, ok := token.CallerFromContext(ctx); ok {
		entry = entry.Int64("actor_id", caller.Subject).Str("actor", caller.Username)
	}
	for k, v := range fields {
		entry = entry.Interface(k, v)
	}
	entry.Msg(event)
	return nil
}
