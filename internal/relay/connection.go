package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaybridge-project/relaybridge/internal/backoff"
	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/events"
	"github.com/relaybridge-project/relaybridge/internal/protocol"
	"github.com/relaybridge-project/relaybridge/internal/util"
)

const (
	// BroadcastTarget addresses every player on the local server.
	BroadcastTarget = "@a"

	// postColor is the display color for messages posted from the hub.
	postColor = "#777777"
)

// ErrNotRegistered is returned by Send when the connection is not in
// the Registered state. The message is dropped, never queued.
var ErrNotRegistered = errors.New("not registered with relay hub")

// Stats is a snapshot of connection counters for the API, CLI and
// telemetry.
type Stats struct {
	State          string `json:"state"`
	RetryDelayMS   int64  `json:"retry_delay_ms"`
	Sent           uint64 `json:"sent"`
	Received       uint64 `json:"received"`
	Dropped        uint64 `json:"dropped"`
	Registrations  uint64 `json:"registrations"`
	ProtocolErrors uint64 `json:"protocol_errors"`
}

// Conn owns the hub connection lifecycle. All state transitions happen
// under one mutex, driven by transport callbacks and the retry timer;
// there is no terminal state, the client retries forever.
type Conn struct {
	mu sync.Mutex

	cfg    config.MultiChatConfig
	tr     Transport
	sink   Sink
	bo     *backoff.Backoff
	logger zerolog.Logger

	bus     *events.EventBus
	history History

	state      ConnectionState
	retryTimer *time.Timer

	sent          uint64
	received      uint64
	dropped       uint64
	registrations uint64
	protoErrs     uint64
}

// NewConn creates the connection state machine and binds itself to the
// transport. It starts Disconnected; call Connect to begin.
func NewConn(cfg config.MultiChatConfig, tr Transport, sink Sink, bo *backoff.Backoff) *Conn {
	if bo == nil {
		bo = backoff.Default()
	}
	c := &Conn{
		cfg:    cfg,
		tr:     tr,
		sink:   sink,
		bo:     bo,
		logger: util.ComponentLogger("connection"),
		state:  StateDisconnected,
	}
	tr.Bind(c)
	return c
}

// SetEventBus mirrors state transitions and relayed messages onto the
// event bus for history, telemetry and the API.
func (c *Conn) SetEventBus(bus *events.EventBus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// SetHistory attaches the message history recorder.
func (c *Conn) SetHistory(h History) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = h
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:          c.state.String(),
		RetryDelayMS:   c.bo.Current().Milliseconds(),
		Sent:           c.sent,
		Received:       c.received,
		Dropped:        c.dropped,
		Registrations:  c.registrations,
		ProtocolErrors: c.protoErrs,
	}
}

// Connect begins a connection attempt if one is not already underway.
// Safe to call repeatedly: while Connecting or Registered it is a
// no-op.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	url := c.cfg.URL
	c.mu.Unlock()

	c.logger.Info().Str("url", url).Msg("connecting to multichat server")
	c.emitState(StateConnecting, 0)
	c.tr.Open(url)
}

// Reconnect is the user-triggered reconnect path: it cancels any
// pending retry, announces the attempt, and connects immediately.
// While Connecting or Registered it is a no-op.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopRetryTimerLocked()
	c.mu.Unlock()

	c.sink.Tell(BroadcastTarget, "multichat: connecting to server", "")
	c.Connect()
}

// Send forwards a chat payload to the hub as a client-message frame.
// When not Registered the message is dropped with a warning; there is
// no buffering of undelivered messages.
func (c *Conn) Send(payload string) error {
	c.mu.Lock()
	if c.state != StateRegistered {
		c.dropped++
		c.mu.Unlock()
		c.logger.Warn().Str("content", payload).Msg("tried to write websocket when not available")
		return ErrNotRegistered
	}
	history := c.history
	c.mu.Unlock()

	frame, err := protocol.Encode(protocol.ClientMessage{Content: payload})
	if err != nil {
		return fmt.Errorf("failed to encode client-message: %w", err)
	}

	c.logger.Debug().RawJSON("frame", frame).Msg("websocket sending")
	if err := c.tr.Send(frame); err != nil {
		return fmt.Errorf("failed to send client-message: %w", err)
	}

	c.mu.Lock()
	c.sent++
	c.mu.Unlock()

	if history != nil {
		history.RecordOutbound(payload)
	}
	c.emit(events.EventRelayOutbound, events.OutboundPayload{Content: payload})
	return nil
}

// HandleOpen runs when the transport connects. The client registers
// with the hub and stays Connecting until the acknowledgment arrives.
func (c *Conn) HandleOpen() {
	c.logger.Info().Str("url", c.cfg.URL).Msg("successfully connected")

	frame, err := protocol.Encode(protocol.Register{
		ClientName: c.cfg.ClientName(),
		SecretKey:  c.cfg.Key,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode register frame")
		return
	}

	c.logger.Debug().RawJSON("frame", frame).Msg("websocket sending")
	if err := c.tr.Send(frame); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send register frame")
	}
}

// HandleFrame processes one inbound frame. A frame that fails to
// decode is logged and discarded without touching connection state.
func (c *Conn) HandleFrame(frame []byte) {
	c.logger.Debug().Str("frame", string(frame)).Msg("websocket received")

	msg, err := protocol.Decode(frame)
	if err != nil {
		c.mu.Lock()
		c.protoErrs++
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("discarding undecodable frame")
		return
	}

	switch m := msg.(type) {
	case protocol.RegisterAck:
		c.onRegisterAck()
	case protocol.ForwardingMessage:
		c.onForwardingMessage(m)
	default:
		c.logger.Debug().Str("action", msg.Action()).Msg("ignoring unexpected frame")
	}
}

func (c *Conn) onRegisterAck() {
	c.mu.Lock()
	if c.state == StateRegistered {
		// Duplicate ack, nothing to do.
		c.mu.Unlock()
		return
	}
	c.state = StateRegistered
	c.bo.Reset()
	c.registrations++
	c.mu.Unlock()

	c.logger.Info().Msg("successfully registered")
	c.sink.Tell(BroadcastTarget, "multichat: server connected", "")
	c.emitState(StateRegistered, 0)
}

func (c *Conn) onForwardingMessage(m protocol.ForwardingMessage) {
	c.mu.Lock()
	c.received++
	post := c.cfg.Post
	history := c.history
	c.mu.Unlock()

	if post {
		c.sink.Tell(BroadcastTarget, fmt.Sprintf("[%s]%s", m.SourceClientName, m.Content), postColor)
	}

	if history != nil {
		history.RecordInbound(m.SourceClientName, m.Content)
	}
	c.emit(events.EventRelayInbound, events.InboundPayload{
		Source:  m.SourceClientName,
		Content: m.Content,
	})
}

// HandleClose runs when the connection is lost or an attempt fails.
// The notice reports the delay about to be used, then the backoff
// advances for the next cycle.
func (c *Conn) HandleClose(err error) {
	c.mu.Lock()
	c.state = StateDisconnected
	delay := c.bo.Current()
	c.stopRetryTimerLocked()
	c.retryTimer = time.AfterFunc(delay, c.onRetryTimer)
	c.bo.Advance()
	c.mu.Unlock()

	c.logger.Info().Err(err).Dur("retry_in", delay).Msg("connection broken")
	c.sink.Tell(BroadcastTarget, fmt.Sprintf("multichat connection broken, retry after %dms", delay.Milliseconds()), "")
	c.emitState(StateDisconnected, delay.Milliseconds())
}

// onRetryTimer fires after the scheduled delay and starts the next
// connection attempt.
func (c *Conn) onRetryTimer() {
	c.mu.Lock()
	c.retryTimer = nil
	c.mu.Unlock()

	c.logger.Info().Msg("retrying multichat connection")
	c.sink.Tell(BroadcastTarget, "multichat: connecting to server", "")
	c.Connect()
}

// stopRetryTimerLocked cancels the pending retry so at most one retry
// is ever scheduled. Caller holds c.mu.
func (c *Conn) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// Close tears down the transport. Used during process shutdown only;
// the state machine itself has no terminal state.
func (c *Conn) Close() {
	c.mu.Lock()
	c.stopRetryTimerLocked()
	c.mu.Unlock()
	c.tr.Close()
}

func (c *Conn) emitState(s ConnectionState, retryMS int64) {
	c.emit(events.EventRelayStateChanged, events.StateChangePayload{
		State:        s.String(),
		RetryDelayMS: retryMS,
	})
}

func (c *Conn) emit(t events.EventType, payload interface{}) {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return
	}
	bus.Emit(context.Background(), events.Event{Type: t, Source: "relay", Payload: payload})
}
