package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
)

// StoreSink appends events to an event store.
type StoreSink struct {
	Store eventstore.Store
}

// OpenSQLiteSink opens (or creates) a SQLite event database.
func OpenSQLiteSink(path string) (*StoreSink, error) {
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return nil, cerrors.EventSinkError("sqlite", err).WithContext("path", path)
	}
	return &StoreSink{Store: store}, nil
}

// Publish implements Sink.
func (s *StoreSink) Publish(ctx context.Context, e eventstore.Event) error {
	return s.Store.Append(ctx, e.RunID(), e.Type(), e.Payload(), e.Metadata())
}

// Close implements Sink.
func (s *StoreSink) Close() error { return s.Store.Close() }

// natsConn is the part of *nats.Conn the sink needs.
type natsConn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

// NATSSink publishes every event on <subject>.<EventType>.
type NATSSink struct {
	conn    natsConn
	subject string
}

// Envelope is the wire format of a published event.
type Envelope struct {
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ConnectNATS dials url and returns a sink publishing below subject.
func ConnectNATS(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("dita2docbook"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, cerrors.EventSinkError("nats", err).WithContext("url", url)
	}
	return NewNATSSink(conn, subject), nil
}

// NewNATSSink wraps an established connection.
func NewNATSSink(conn natsConn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// Publish implements Sink.
func (s *NATSSink) Publish(_ context.Context, e eventstore.Event) error {
	data, err := json.Marshal(Envelope{
		RunID:     e.RunID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   json.RawMessage(e.Payload()),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.conn.Publish(s.subject+"."+e.Type(), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type(), err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	err := s.conn.Flush()
	s.conn.Close()
	if err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}
