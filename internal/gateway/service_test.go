package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// === Fakes ===

// fakeTransport is a hand-driven transport: the test pushes events and
// fires hooks directly.
type fakeTransport struct {
	events chan protocol.TagEvent

	onConnect    func()
	onDisconnect func(err error)
	onError      func(err error)

	connectErr   error
	scanErr      error
	connected    bool
	disconnected bool
	scanning     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.TagEvent, 8)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	if f.onConnect != nil {
		f.onConnect()
	}
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	f.disconnected = true
	if f.onDisconnect != nil {
		f.onDisconnect(nil)
	}
	return nil
}

func (f *fakeTransport) StartScan() error {
	if f.scanErr != nil {
		return f.scanErr
	}
	f.scanning = true
	return nil
}

func (f *fakeTransport) StopScan() error                    { f.scanning = false; return nil }
func (f *fakeTransport) ReadTag() error                     { return nil }
func (f *fakeTransport) Events() <-chan protocol.TagEvent   { return f.events }
func (f *fakeTransport) SetOnConnect(fn func())             { f.onConnect = fn }
func (f *fakeTransport) SetOnDisconnect(fn func(err error)) { f.onDisconnect = fn }
func (f *fakeTransport) SetOnError(fn func(err error))      { f.onError = fn }

type fakeRecorder struct {
	mu      sync.Mutex
	records []protocol.TagEvent
	readers []string
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, readerID string, ev protocol.TagEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, ev)
	f.readers = append(f.readers, readerID)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	published []string
	channels  []string
	err       error
}

func (f *fakePublisher) Publish(payload any, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	ev, _ := payload.(protocol.TagEvent)
	f.published = append(f.published, ev.ID)
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeTelemetry struct {
	mu    sync.Mutex
	reads []string
	links []bool
}

func (f *fakeTelemetry) WriteTagRead(readerID, tagID string, rssi int, seenAt time.Time) {
	f.mu.Lock()
	f.reads = append(f.reads, tagID)
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteLinkStatus(readerID, transport string, connected bool) {
	f.mu.Lock()
	f.links = append(f.links, connected)
	f.mu.Unlock()
}

func testService(tr *fakeTransport, rec *fakeRecorder) *Service {
	return NewService(Config{
		ReaderID:      "dock-door-3",
		TransportKind: "serial",
		Channel:       "tagbridge/tags/dock-door-3",
	}, tr, rec)
}

// runService starts Run in a goroutine and returns a stop function that
// cancels it and waits for exit.
func runService(t *testing.T, svc *Service) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Run() did not exit after cancel")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// === Pipeline ===

func TestServiceRecordsAndFansOut(t *testing.T) {
	tr := newFakeTransport()
	rec := &fakeRecorder{}
	pub := &fakePublisher{connected: true}
	tel := &fakeTelemetry{}

	svc := testService(tr, rec)
	svc.SetPublisher(pub)
	svc.SetTelemetry(tel)

	stop := runService(t, svc)

	tr.events <- protocol.TagEvent{ID: "CARD-0042", RSSI: -80, Timestamp: time.Now()}
	waitFor(t, func() bool { return rec.count() == 1 }, "sighting recorded")

	stop()

	if rec.readers[0] != "dock-door-3" {
		t.Errorf("recorded reader = %q, want %q", rec.readers[0], "dock-door-3")
	}

	pub.mu.Lock()
	if len(pub.published) != 1 || pub.published[0] != "CARD-0042" {
		t.Errorf("published = %v, want [CARD-0042]", pub.published)
	}
	if pub.channels[0] != "tagbridge/tags/dock-door-3" {
		t.Errorf("publish channel = %q", pub.channels[0])
	}
	pub.mu.Unlock()

	tel.mu.Lock()
	if len(tel.reads) != 1 || tel.reads[0] != "CARD-0042" {
		t.Errorf("telemetry reads = %v, want [CARD-0042]", tel.reads)
	}
	tel.mu.Unlock()

	if !tr.disconnected {
		t.Error("transport not disconnected on shutdown")
	}
}

func TestServiceSinkFailuresDoNotStallPipeline(t *testing.T) {
	tr := newFakeTransport()
	rec := &fakeRecorder{}
	pub := &fakePublisher{connected: true, err: errors.New("broker down")}
	tel := &fakeTelemetry{}

	svc := testService(tr, rec)
	svc.SetPublisher(pub)
	svc.SetTelemetry(tel)

	stop := runService(t, svc)
	defer stop()

	tr.events <- protocol.TagEvent{ID: "CARD-0001"}
	tr.events <- protocol.TagEvent{ID: "CARD-0002"}

	waitFor(t, func() bool { return rec.count() == 2 }, "both sightings recorded")

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.reads) != 2 {
		t.Errorf("telemetry got %d reads, want 2", len(tel.reads))
	}
}

func TestServiceSkipsPublishWhenBrokerOffline(t *testing.T) {
	tr := newFakeTransport()
	rec := &fakeRecorder{}
	pub := &fakePublisher{connected: false}

	svc := testService(tr, rec)
	svc.SetPublisher(pub)

	stop := runService(t, svc)
	defer stop()

	tr.events <- protocol.TagEvent{ID: "CARD-0001"}
	waitFor(t, func() bool { return rec.count() == 1 }, "sighting recorded")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.published) != 0 {
		t.Errorf("published %v while broker offline", pub.published)
	}
}

func TestServiceWithoutOptionalSinks(t *testing.T) {
	tr := newFakeTransport()
	rec := &fakeRecorder{}

	svc := testService(tr, rec)

	stop := runService(t, svc)
	defer stop()

	tr.events <- protocol.TagEvent{ID: "CARD-0001"}
	waitFor(t, func() bool { return rec.count() == 1 }, "sighting recorded")
}

// === Startup failures ===

func TestServiceConnectFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = errors.New("no such device")

	svc := testService(tr, &fakeRecorder{})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when transport connect fails")
	}
}

func TestServiceScanFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.scanErr = errors.New("not connected")

	svc := testService(tr, &fakeRecorder{})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when scanning cannot start")
	}
	if !tr.disconnected {
		t.Error("transport not disconnected after scan failure")
	}
}

// === Link telemetry ===

func TestServiceLinkTransitionsReachTelemetry(t *testing.T) {
	tr := newFakeTransport()
	rec := &fakeRecorder{}
	tel := &fakeTelemetry{}

	svc := testService(tr, rec)
	svc.SetTelemetry(tel)

	stop := runService(t, svc)

	waitFor(t, func() bool {
		tel.mu.Lock()
		defer tel.mu.Unlock()
		return len(tel.links) >= 1 && tel.links[0]
	}, "link-up telemetry")

	stop()

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if last := tel.links[len(tel.links)-1]; last {
		t.Error("expected final link transition to be down")
	}
}
