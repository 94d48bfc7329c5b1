package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes capture events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.Int("iface", int(event.Interface)),
		slog.String("direction", event.Direction.String()),
		slog.String("category", event.Category.String()),
	}
	if event.AttemptID != "" {
		attrs = append(attrs, slog.String("attempt", event.AttemptID))
	}
	if event.Role != "" {
		attrs = append(attrs, slog.String("role", event.Role))
	}
	if event.Peer != "" {
		attrs = append(attrs, slog.String("peer", event.Peer))
	}

	switch {
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("command", event.Message.Command.String()),
			slog.Int("size", event.Message.Size),
		)
		if event.Message.MessageID != 0 {
			attrs = append(attrs, slog.Uint64("msg_id", uint64(event.Message.MessageID)))
		}
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.Int("dbm", int(event.Message.DBM)))
		}
	case event.Timeout != nil:
		attrs = append(attrs,
			slog.String("kind", event.Timeout.Kind.String()),
			slog.Uint64("msg_id", uint64(event.Timeout.MessageID)),
			slog.Bool("used_all_retries", event.Timeout.UsedAllRetries),
			slog.String("decision", event.Timeout.Decision.String()),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "mle", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
