package relay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relaybridge-project/relaybridge/internal/backoff"
	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/protocol"
)

// fakeTransport records outbound frames and lets tests drive the
// transport callbacks directly.
type fakeTransport struct {
	mu      sync.Mutex
	handler TransportHandler
	opens   int
	frames  [][]byte
	sendErr error
}

func (t *fakeTransport) Bind(h TransportHandler) { t.handler = h }

func (t *fakeTransport) Open(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
}

func (t *fakeTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, frame)
	return nil
}

func (t *fakeTransport) Close() {}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.frames))
	copy(out, t.frames)
	return out
}

// sentKind counts outbound frames of a given action.
func (t *fakeTransport) sentKind(action string) int {
	n := 0
	for _, f := range t.sentFrames() {
		msg, err := protocol.Decode(f)
		if err == nil && msg.Action() == action {
			n++
		}
	}
	return n
}

type tellCall struct {
	target, text, color string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []tellCall
}

func (s *fakeSink) Tell(target, text, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, tellCall{target, text, color})
}

func (s *fakeSink) told() []tellCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tellCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func testConfig() config.MultiChatConfig {
	return config.MultiChatConfig{
		URL:        "ws://hub.example.com/",
		Key:        "hunter2",
		ServerName: "survival",
		Listen:     true,
		Post:       true,
	}
}

func newTestConn(cfg config.MultiChatConfig) (*Conn, *fakeTransport, *fakeSink) {
	tr := &fakeTransport{}
	sink := &fakeSink{}
	// Large minimum keeps the real retry timer from firing mid-test.
	c := NewConn(cfg, tr, sink, backoff.New(5*time.Second, time.Hour))
	return c, tr, sink
}

// register drives the connection to Registered.
func register(t *testing.T, c *Conn, tr *fakeTransport) {
	t.Helper()
	c.Connect()
	tr.handler.HandleOpen()
	tr.handler.HandleFrame([]byte(`{"action":"register-ack"}`))
	if c.State() != StateRegistered {
		t.Fatalf("state after register-ack = %v, want registered", c.State())
	}
}

func TestConnectSendsRegisterFrame(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	c.Connect()
	if got := c.State(); got != StateConnecting {
		t.Fatalf("state after Connect = %v, want connecting", got)
	}
	if got := tr.openCount(); got != 1 {
		t.Fatalf("open count = %d, want 1", got)
	}

	tr.handler.HandleOpen()
	frames := tr.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("frames sent = %d, want 1 register frame", len(frames))
	}
	msg, err := protocol.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode register frame: %v", err)
	}
	reg, ok := msg.(protocol.Register)
	if !ok {
		t.Fatalf("frame kind = %T, want Register", msg)
	}
	if reg.ClientName != "MC-survival" || reg.SecretKey != "hunter2" {
		t.Fatalf("register = %+v, want MC-survival/hunter2", reg)
	}

	// Still awaiting the acknowledgment.
	if got := c.State(); got != StateConnecting {
		t.Fatalf("state after open = %v, want connecting", got)
	}
}

func TestConnectIdempotent(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	c.Connect()
	c.Connect()
	c.Connect()
	if got := tr.openCount(); got != 1 {
		t.Fatalf("open count after repeated Connect = %d, want 1", got)
	}

	register(t, c, tr)
	c.Connect()
	if got := tr.openCount(); got != 1 {
		t.Fatalf("open count while registered = %d, want 1", got)
	}
}

func TestRegisterAckTransitionsAndNotifies(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)

	var notices int
	for _, call := range sink.told() {
		if call.target == BroadcastTarget && call.text == "multichat: server connected" {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("connected notices = %d, want 1", notices)
	}

	// A duplicate ack is ignored.
	tr.handler.HandleFrame([]byte(`{"action":"register-ack"}`))
	notices = 0
	for _, call := range sink.told() {
		if call.text == "multichat: server connected" {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("connected notices after duplicate ack = %d, want 1", notices)
	}
}

func TestSendWhileNotRegisteredDrops(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	if err := c.Send("x"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Send while disconnected = %v, want ErrNotRegistered", err)
	}
	if got := tr.sentKind(protocol.ActionClientMessage); got != 0 {
		t.Fatalf("client-message frames = %d, want 0", got)
	}

	c.Connect()
	tr.handler.HandleOpen()
	if err := c.Send("y"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Send while connecting = %v, want ErrNotRegistered", err)
	}

	stats := c.Stats()
	if stats.Dropped != 2 {
		t.Fatalf("dropped = %d, want 2", stats.Dropped)
	}
	if stats.Sent != 0 {
		t.Fatalf("sent = %d, want 0", stats.Sent)
	}
}

func TestSendWhileRegistered(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)
	if err := c.Send("<Bob> hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	frames := tr.sentFrames()
	msg, err := protocol.Decode(frames[len(frames)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cm, ok := msg.(protocol.ClientMessage)
	if !ok || cm.Content != "<Bob> hello" {
		t.Fatalf("last frame = %#v, want client-message %q", msg, "<Bob> hello")
	}

	if got := c.Stats().Sent; got != 1 {
		t.Fatalf("sent = %d, want 1", got)
	}
}

func TestSendFailureNotCountedAsSent(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)
	tr.sendErr = errors.New("broken pipe")

	if err := c.Send("<Bob> hello"); err == nil {
		t.Fatal("Send on a failing transport returned nil error")
	}
	if got := c.Stats().Sent; got != 0 {
		t.Fatalf("sent after failed write = %d, want 0", got)
	}

	tr.sendErr = nil
	if err := c.Send("<Bob> again"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := c.Stats().Sent; got != 1 {
		t.Fatalf("sent after recovery = %d, want 1", got)
	}
}

func TestForwardingMessagePosted(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)
	tr.handler.HandleFrame([]byte(`{"action":"forwarding-message","source-client-name":"Hub1","content":"hi"}`))

	found := false
	for _, call := range sink.told() {
		if call.target == BroadcastTarget && call.text == "[Hub1]hi" && call.color == "#777777" {
			found = true
		}
	}
	if !found {
		t.Fatalf("broadcast of [Hub1]hi not found in %v", sink.told())
	}
}

func TestForwardingMessageSuppressedWithoutPost(t *testing.T) {
	cfg := testConfig()
	cfg.Post = false
	c, tr, sink := newTestConn(cfg)
	defer c.Close()

	register(t, c, tr)
	before := len(sink.told())
	tr.handler.HandleFrame([]byte(`{"action":"forwarding-message","source-client-name":"Hub1","content":"hi"}`))

	if got := len(sink.told()); got != before {
		t.Fatalf("sink calls grew from %d to %d with post disabled", before, got)
	}
	if got := c.Stats().Received; got != 1 {
		t.Fatalf("received = %d, want 1 (still counted)", got)
	}
}

func TestUndecodableFrameLeavesStateAlone(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)
	tr.handler.HandleFrame([]byte("garbage"))
	tr.handler.HandleFrame([]byte(`{"action":"forwarding-message"}`))

	if got := c.State(); got != StateRegistered {
		t.Fatalf("state after bad frames = %v, want registered", got)
	}
	if got := c.Stats().ProtocolErrors; got != 2 {
		t.Fatalf("protocol errors = %d, want 2", got)
	}
}

func TestBackoffReportedThenAdvanced(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	c.Connect()
	tr.handler.HandleOpen()

	// Three consecutive losses with no registration in between: the
	// notices report 5000, 10000, 20000.
	want := []string{"5000ms", "10000ms", "20000ms"}
	for i, w := range want {
		tr.handler.HandleClose(errors.New("reset by peer"))
		calls := sink.told()
		last := calls[len(calls)-1]
		if !strings.Contains(last.text, "connection broken") || !strings.Contains(last.text, w) {
			t.Fatalf("close %d: notice = %q, want retry after %s", i, last.text, w)
		}
		if got := c.State(); got != StateDisconnected {
			t.Fatalf("close %d: state = %v, want disconnected", i, got)
		}
		// Timer is pending; simulate it firing so the next cycle can
		// connect and fail again.
		c.mu.Lock()
		c.stopRetryTimerLocked()
		c.mu.Unlock()
		c.onRetryTimer()
		tr.handler.HandleOpen()
	}
}

func TestBackoffResetAfterRegistration(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	c.Connect()
	tr.handler.HandleOpen()
	tr.handler.HandleClose(errors.New("refused")) // 5000, advances to 10000
	c.mu.Lock()
	c.stopRetryTimerLocked()
	c.mu.Unlock()
	c.onRetryTimer()

	register(t, c, tr) // resets backoff

	tr.handler.HandleClose(errors.New("reset"))
	calls := sink.told()
	last := calls[len(calls)-1]
	if !strings.Contains(last.text, "5000ms") {
		t.Fatalf("notice after re-registration loss = %q, want 5000ms", last.text)
	}
}

func TestRetryTimerRequestsConnect(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	c.Connect()
	tr.handler.HandleOpen()
	tr.handler.HandleClose(errors.New("reset"))

	c.mu.Lock()
	c.stopRetryTimerLocked()
	c.mu.Unlock()
	c.onRetryTimer()

	if got := tr.openCount(); got != 2 {
		t.Fatalf("open count after retry = %d, want 2", got)
	}
	last := sink.told()
	found := false
	for _, call := range last {
		if call.text == "multichat: connecting to server" {
			found = true
		}
	}
	if !found {
		t.Fatal("connecting notice not emitted on retry")
	}
}

func TestSendNeverWritesUnlessRegistered(t *testing.T) {
	// Property: across an arbitrary call sequence, client-message
	// writes never exceed sends made while Registered.
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	registeredSends := 0
	steps := []func(){
		func() { c.Send("a") },
		func() { c.Connect() },
		func() { c.Send("b") },
		func() { tr.handler.HandleOpen() },
		func() { c.Send("c") },
		func() { tr.handler.HandleFrame([]byte(`{"action":"register-ack"}`)) },
		func() {
			if c.State() == StateRegistered {
				registeredSends++
			}
			c.Send("d")
		},
		func() { tr.handler.HandleClose(errors.New("gone")) },
		func() { c.Send("e") },
	}
	for _, step := range steps {
		step()
	}

	if got := tr.sentKind(protocol.ActionClientMessage); got > registeredSends {
		t.Fatalf("client-message writes = %d, exceeds registered-state sends %d", got, registeredSends)
	}
}

func TestReconnectWhileDisconnected(t *testing.T) {
	c, tr, sink := newTestConn(testConfig())
	defer c.Close()

	c.Reconnect()
	if got := tr.openCount(); got != 1 {
		t.Fatalf("open count after Reconnect = %d, want 1", got)
	}
	calls := sink.told()
	if len(calls) == 0 || calls[0].text != "multichat: connecting to server" {
		t.Fatalf("calls = %v, want connecting notice first", calls)
	}

	// While connecting, Reconnect is a no-op.
	c.Reconnect()
	if got := tr.openCount(); got != 1 {
		t.Fatalf("open count after second Reconnect = %d, want 1", got)
	}
}

func TestStatsSnapshot(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	register(t, c, tr)
	c.Send("one")
	c.Send("two")
	tr.handler.HandleFrame([]byte(`{"action":"forwarding-message","source-client-name":"Hub1","content":"x"}`))

	s := c.Stats()
	if s.State != "registered" {
		t.Errorf("State = %q, want registered", s.State)
	}
	if s.Sent != 2 || s.Received != 1 || s.Registrations != 1 {
		t.Errorf("counters = %+v, want sent 2, received 1, registrations 1", s)
	}
	if s.RetryDelayMS != 5000 {
		t.Errorf("RetryDelayMS = %d, want 5000 after reset", s.RetryDelayMS)
	}
}

// historyRecorder verifies relayed messages reach the history store.
type historyRecorder struct {
	mu       sync.Mutex
	outbound []string
	inbound  []string
}

func (h *historyRecorder) RecordOutbound(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outbound = append(h.outbound, content)
}

func (h *historyRecorder) RecordInbound(source, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbound = append(h.inbound, fmt.Sprintf("%s:%s", source, content))
}

func TestHistoryRecording(t *testing.T) {
	c, tr, _ := newTestConn(testConfig())
	defer c.Close()

	h := &historyRecorder{}
	c.SetHistory(h)

	register(t, c, tr)
	c.Send("out")
	tr.handler.HandleFrame([]byte(`{"action":"forwarding-message","source-client-name":"Hub1","content":"in"}`))

	if len(h.outbound) != 1 || h.outbound[0] != "out" {
		t.Errorf("outbound history = %v, want [out]", h.outbound)
	}
	if len(h.inbound) != 1 || h.inbound[0] != "Hub1:in" {
		t.Errorf("inbound history = %v, want [Hub1:in]", h.inbound)
	}
}
