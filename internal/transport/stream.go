package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// Read-loop tuning for byte-stream links.
const (
	// readBufSize is the per-read buffer for stream links.
	readBufSize = 4096

	// rxBackoffMin and rxBackoffMax bound the sleep applied after
	// transient read errors, doubling per consecutive failure.
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond

	// defaultScanInterval is the inventory polling period when the
	// configuration does not set one.
	defaultScanInterval = 500 * time.Millisecond
)

// sleepFn allows tests to intercept read-loop backoff sleeps.
var sleepFn = time.Sleep

// tagStream is the shared machinery behind the serial and TCP transports:
// it feeds inbound chunks through the reassembler, extracts tag events
// from inventory-report frames, and runs the periodic inventory poll.
//
// The reassembler is driven only from the owning transport's read loop,
// in arrival order.
type tagStream struct {
	hooks
	asm    *protocol.Reassembler
	events chan protocol.TagEvent
	logger Logger

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
}

func newTagStream(logger Logger) *tagStream {
	if logger == nil {
		logger = noopLogger{}
	}
	return &tagStream{
		asm:    protocol.NewReassembler(),
		events: make(chan protocol.TagEvent, eventBufferSize),
		logger: logger,
	}
}

// ingest pushes one inbound chunk through the reassembler. Decode errors
// are surfaced and the stream resynchronizes; they never stop processing.
func (s *tagStream) ingest(chunk []byte) {
	s.asm.Push(chunk, func(f protocol.Frame) {
		ev, ok := protocol.ExtractTag(f, time.Now())
		if !ok {
			// Acknowledgements and other non-inventory frames are normal
			// traffic at this layer.
			return
		}
		s.emit(ev)
	}, func(err error) {
		s.logger.Warn("frame decode error", "error", err)
		s.fireError(err)
	})
}

// emit delivers a tag event without ever blocking the read loop.
func (s *tagStream) emit(ev protocol.TagEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("tag event dropped, consumer too slow", "id", ev.ID)
	}
}

// startPolling launches the periodic inventory poll, writing an inventory
// command frame to w every interval. It replaces any poll already running.
func (s *tagStream) startPolling(w io.Writer, address byte, interval time.Duration) {
	if interval <= 0 {
		interval = defaultScanInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pollMu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
	}
	s.pollCancel = cancel
	s.pollMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writeInventoryPoll(w, address); err != nil {
					s.logger.Warn("inventory poll write failed", "error", err)
					s.fireError(err)
				}
			}
		}
	}()
}

// stopPolling cancels the periodic inventory poll, if running.
func (s *tagStream) stopPolling() {
	s.pollMu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	s.pollMu.Unlock()
}

// writeInventoryPoll writes a single inventory command frame.
func writeInventoryPoll(w io.Writer, address byte) error {
	_, err := w.Write(protocol.Encode(address, protocol.CmdInventory, nil))
	return err
}

// nextBackoff doubles a transient-error backoff within its bounds.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > rxBackoffMax {
		next = rxBackoffMax
	}
	return next
}
