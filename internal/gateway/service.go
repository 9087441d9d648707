package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
	"github.com/tagbridge/tagbridge-core/internal/transport"
)

// Recorder persists sightings. Implemented by sightings.SQLiteStore.
type Recorder interface {
	Record(ctx context.Context, readerID string, ev protocol.TagEvent) error
}

// Publisher mirrors reads onto the broker. Implemented by broker.Manager.
type Publisher interface {
	Publish(payload any, channel string) error
	IsConnected() bool
}

// Telemetry records per-read signal data and link transitions.
// Implemented by influxdb.Client.
type Telemetry interface {
	WriteTagRead(readerID, tagID string, rssi int, seenAt time.Time)
	WriteLinkStatus(readerID, transport string, connected bool)
}

// Logger is the logging interface consumed by the service.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config identifies the reader this pipeline serves.
type Config struct {
	// ReaderID tags sightings, telemetry and log lines.
	ReaderID string

	// TransportKind is the link label used in telemetry ("serial",
	// "tcp", "mqtt").
	TransportKind string

	// Channel is the broker channel reads are mirrored to. Empty
	// disables mirroring even when a publisher is set.
	Channel string
}

// Service owns one reader transport and fans its reads out to the sinks.
type Service struct {
	cfg Config
	tr  transport.Transport
	rec Recorder

	pub    Publisher
	tel    Telemetry
	logger Logger
}

// NewService creates a pipeline for one reader. The recorder is
// mandatory; broker and telemetry sinks are attached separately.
func NewService(cfg Config, tr transport.Transport, rec Recorder) *Service {
	return &Service{
		cfg:    cfg,
		tr:     tr,
		rec:    rec,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetPublisher attaches a broker publisher sink.
func (s *Service) SetPublisher(pub Publisher) {
	s.pub = pub
}

// SetTelemetry attaches a telemetry sink.
func (s *Service) SetTelemetry(tel Telemetry) {
	s.tel = tel
}

// Run connects the transport, starts scanning and consumes tag events
// until the context is cancelled. It always disconnects the transport
// on the way out.
//
// A lost link is not fatal here: the transport surfaces it through its
// hooks and the loop keeps draining events, so a transport that comes
// back (or an operator restart) resumes the flow.
func (s *Service) Run(ctx context.Context) error {
	s.tr.SetOnConnect(func() {
		s.logger.Info("reader link up", "reader", s.cfg.ReaderID)
		if s.tel != nil {
			s.tel.WriteLinkStatus(s.cfg.ReaderID, s.cfg.TransportKind, true)
		}
	})
	s.tr.SetOnDisconnect(func(err error) {
		s.logger.Warn("reader link down", "reader", s.cfg.ReaderID, "error", err)
		if s.tel != nil {
			s.tel.WriteLinkStatus(s.cfg.ReaderID, s.cfg.TransportKind, false)
		}
	})
	s.tr.SetOnError(func(err error) {
		s.logger.Warn("reader stream error", "reader", s.cfg.ReaderID, "error", err)
	})

	if err := s.tr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting reader transport: %w", err)
	}
	defer func() {
		if err := s.tr.Disconnect(); err != nil {
			s.logger.Error("disconnecting reader transport", "error", err)
		}
	}()

	if err := s.tr.StartScan(); err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.tr.Events():
			s.handle(ctx, ev)
		}
	}
}

// handle fans one read out to the sinks. Sink errors are logged, never
// propagated: a full disk or a flapping broker must not stop reads.
func (s *Service) handle(ctx context.Context, ev protocol.TagEvent) {
	s.logger.Debug("tag read", "reader", s.cfg.ReaderID, "tag", ev.ID, "rssi", ev.RSSI)

	if err := s.rec.Record(ctx, s.cfg.ReaderID, ev); err != nil {
		s.logger.Error("recording sighting", "tag", ev.ID, "error", err)
	}

	if s.pub != nil && s.cfg.Channel != "" {
		if !s.pub.IsConnected() {
			s.logger.Debug("broker offline, read not mirrored", "tag", ev.ID)
		} else if err := s.pub.Publish(ev, s.cfg.Channel); err != nil {
			s.logger.Warn("publishing read", "tag", ev.ID, "error", err)
		}
	}

	if s.tel != nil {
		s.tel.WriteTagRead(s.cfg.ReaderID, ev.ID, ev.RSSI, ev.Timestamp)
	}
}
