package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to a structured logger. Offline runs use it
// instead of Slack, and live runs keep it next to the real channel so every
// notification also lands in the process log.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger, or to the default
// logger when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier. It never fails.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.String("run", event.RunID),
	}
	if event.Title != "" {
		attrs = append(attrs, slog.String("title", event.Title))
	}
	if len(event.Fields) > 0 {
		fields := make([]any, 0, len(event.Fields))
		for _, f := range event.Fields {
			fields = append(fields, slog.String(f.Title, f.Value))
		}
		attrs = append(attrs, slog.Group("fields", fields...))
	}
	n.Logger.LogAttrs(ctx, severityLevel(event.Severity), event.Message, attrs...)
	return nil
}

func severityLevel(severity string) slog.Level {
	switch severity {
	case SeverityError:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
