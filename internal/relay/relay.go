package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/events"
	"github.com/relaybridge-project/relaybridge/internal/util"
)

// reconnectCommand is the chat command for a manual reconnect. It is
// handled locally and never forwarded to the hub.
const reconnectCommand = "!multichat connect"

// Relay subscribes to local game events, applies the forwarding
// policy, and hands payloads to the connection state machine.
type Relay struct {
	cfg    config.MultiChatConfig
	conn   *Conn
	sink   Sink
	logger zerolog.Logger
}

// NewRelay creates the event relay.
func NewRelay(cfg config.MultiChatConfig, conn *Conn, sink Sink) *Relay {
	return &Relay{
		cfg:    cfg,
		conn:   conn,
		sink:   sink,
		logger: util.ComponentLogger("relay"),
	}
}

// Register subscribes one handler per game event category.
func (r *Relay) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventPlayerChat, "relay.playerChat", r.onPlayerChat)
	bus.Subscribe(events.EventPlayerLogin, "relay.playerLogin", r.onPlayerLogin)
	bus.Subscribe(events.EventPlayerLogout, "relay.playerLogout", r.onPlayerLogout)
	bus.Subscribe(events.EventPlayerAdvancement, "relay.advancement", r.onFormatted)
	bus.Subscribe(events.EventPlayerDeath, "relay.death", r.onFormatted)
}

// onPlayerChat handles local chat input. The reconnect command is
// consumed locally; everything else is forwarded only when listen is
// enabled, the actor is not the console, and no ignore prefix matches.
func (r *Relay) onPlayerChat(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ChatPayload)
	if !ok {
		return fmt.Errorf("unexpected chat payload type %T", event.Payload)
	}

	if p.Text == reconnectCommand {
		if r.conn.State() == StateRegistered {
			r.sink.Tell(p.Player.Name, "multichat is already connected to server", "")
		} else {
			r.conn.Reconnect()
		}
		return nil
	}

	if !r.cfg.Listen {
		return nil
	}
	if p.Player.Console {
		// Console chat is never relayed.
		return nil
	}
	for _, prefix := range r.cfg.IgnorePrefix {
		if strings.HasPrefix(p.Text, prefix) {
			return nil
		}
	}

	r.send(fmt.Sprintf("<%s> %s", p.Player.Name, p.Text))
	return nil
}

// onPlayerLogin forwards the join notice. Login notices are not gated
// by listen.
func (r *Relay) onPlayerLogin(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return fmt.Errorf("unexpected login payload type %T", event.Payload)
	}
	r.send(loginMessage(r.cfg.Lang, p.Player.Name))
	return nil
}

// onPlayerLogout forwards the leave notice.
func (r *Relay) onPlayerLogout(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return fmt.Errorf("unexpected logout payload type %T", event.Payload)
	}
	r.send(logoutMessage(r.cfg.Lang, p.Player.Name))
	return nil
}

// onFormatted forwards advancement and death events, whose payloads
// own their language-aware rendering.
func (r *Relay) onFormatted(ctx context.Context, event events.Event) error {
	f, ok := event.Payload.(events.LangFormatter)
	if !ok {
		return fmt.Errorf("payload %T does not implement LangFormatter", event.Payload)
	}
	r.send(f.Format(r.cfg.Lang))
	return nil
}

// send forwards a payload, tolerating drops: a send while not
// registered has already been logged and counted by the connection.
func (r *Relay) send(payload string) {
	if err := r.conn.Send(payload); err != nil && err != ErrNotRegistered {
		r.logger.Warn().Err(err).Msg("failed to forward message to hub")
	}
}
