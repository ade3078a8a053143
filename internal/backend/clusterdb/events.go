package clusterdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
)

// CommitEvent is a committed-transaction notification from the cluster
// event stream.
type CommitEvent struct {
	TxID   string `json:"tx_id"`
	Height uint64 `json:"height"`
}

// EventStream subscribes to the cluster's committed-transaction WebSocket
// feed. It is optional reporting machinery: the load generator's submission
// path never depends on it.
type EventStream struct {
	url    string
	logger *slog.Logger
}

// NewEventStream creates a subscriber for the given WebSocket URL.
func NewEventStream(url string, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{url: url, logger: logger}
}

// Run connects and invokes onEvent for every commit event until the context
// is cancelled or the connection dies.
func (s *EventStream) Run(ctx context.Context, onEvent func(CommitEvent)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to commit event stream", "url", s.url)

	// Reads block until the peer sends; cancellation is delivered by
	// closing the connection out from under the reader.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readerDone:
		}
	}()

	for {
		var ev CommitEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("commit event stream closed", "error", err)
				return nil
			}
			return fmt.Errorf("event stream read failed: %w", err)
		}

		onEvent(ev)
	}
}
