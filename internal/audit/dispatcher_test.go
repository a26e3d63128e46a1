package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	assert.Nil(t, d)

	// Nil dispatchers are safe to use.
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(10)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 10}, sink)

	for _, typ := range []string{"login_success", "logout"} {
		d.Emit(context.Background(), Event{EventType: typ})
	}
	d.Close()
	assert.EqualValues(t, 2, d.Delivered())

	got := []string{(<-sink.Events()).EventType, (<-sink.Events()).EventType}
	assert.Equal(t, []string{"login_success", "logout"}, got)
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropIfFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event is held by the sink, one sits in the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	require.Eventually(t, func() bool { return d.Dropped() >= 8 }, time.Second, time.Millisecond)

	close(sink.release)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after_close"})
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "e1", EventType: "logout", AccountID: 7, Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "e1", decoded["id"])
	assert.Equal(t, "logout", decoded["event_type"])
	assert.EqualValues(t, 7, decoded["account_id"])
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Username: "alice", Reason: "bad_password"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "WARN", decoded["level"])
	assert.Equal(t, "bad_password", decoded["reason"])
	assert.Equal(t, "alice", decoded["username"])
}
