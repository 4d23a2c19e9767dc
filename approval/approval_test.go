package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector is a Handler that records signals and can be told to fail.
type collector struct {
	mu      sync.Mutex
	signals []Signal
	err     error
	got     chan Signal
}

func newCollector() *collector {
	return &collector{got: make(chan Signal, 16)}
}

func (c *collector) handle(_ context.Context, sig Signal) error {
	c.mu.Lock()
	c.signals = append(c.signals, sig)
	err := c.err
	c.mu.Unlock()
	c.got <- sig
	return err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

func (c *collector) wait(t *testing.T) Signal {
	t.Helper()
	select {
	case sig := <-c.got:
		return sig
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for signal")
		return Signal{}
	}
}

func TestParseSignal(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		in      string
		want    Signal
		wantErr bool
	}{
		{"full", `{"run_id":"r1","approver":"alice","at":"2026-01-02T03:04:05Z"}`, Signal{RunID: "r1", Approver: "alice", At: at}, false},
		{"trimmed", `{"run_id":" r1 ","approver":" bob ","at":"2026-01-02T03:04:05Z"}`, Signal{RunID: "r1", Approver: "bob", At: at}, false},
		{"missing run", `{"approver":"alice"}`, Signal{}, true},
		{"missing approver", `{"run_id":"r1"}`, Signal{}, true},
		{"not json", `approve r1`, Signal{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignal([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignal) {
					t.Errorf("error = %v, want ErrInvalidSignal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSignal() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSignal_DefaultsTimestamp(t *testing.T) {
	before := time.Now().UTC()
	sig, err := ParseSignal([]byte(`{"run_id":"r1","approver":"alice"}`))
	if err != nil {
		t.Fatal(err)
	}
	if sig.At.Before(before) {
		t.Errorf("At = %v, want >= %v", sig.At, before)
	}
}
