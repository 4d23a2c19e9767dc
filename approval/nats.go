package approval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

type natsSubscription interface {
	Unsubscribe() error
}

type natsConn interface {
	Subscribe(subject string, cb nats.MsgHandler) (natsSubscription, error)
	Close()
}

// NATSSource receives JSON signals from a NATS subject.
type NATSSource struct {
	conn    natsConn
	subject string

	Logger *slog.Logger
}

// NewNATSSource connects to the NATS server at url. token may be empty.
func NewNATSSource(url, subject, token string) (*NATSSource, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultChannel
	}
	opts := []nats.Option{nats.Name("agentic-pipeline-approvals")}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSource{conn: &natsConnAdapter{Conn: nc}, subject: subject}, nil
}

// Listen implements Source. Messages are handed from the NATS callback to
// the listening goroutine so handlers never run concurrently.
func (s *NATSSource) Listen(ctx context.Context, h Handler) error {
	logger := loggerOrDefault(s.Logger)
	msgs := make(chan []byte, 16)

	sub, err := s.conn.Subscribe(s.subject, func(m *nats.Msg) {
		select {
		case msgs <- m.Data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	logger.Info("listening for approvals", "source", "nats", "subject", s.subject)
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-msgs:
			dispatch(ctx, logger, "nats", data, h)
		}
	}
}

// Close drops the NATS connection.
func (s *NATSSource) Close() error {
	s.conn.Close()
	return nil
}

type natsConnAdapter struct {
	*nats.Conn
}

func (a *natsConnAdapter) Subscribe(subject string, cb nats.MsgHandler) (natsSubscription, error) {
	return a.Conn.Subscribe(subject, cb)
}
