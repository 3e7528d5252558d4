// Package events defines the event bus and event types that connect
// the game-server adapter, the relay, and the peripheral components.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Local game events
	EventPlayerChat        EventType = "player_chat"
	EventPlayerLogin       EventType = "player_login"
	EventPlayerLogout      EventType = "player_logout"
	EventPlayerAdvancement EventType = "player_advancement"
	EventPlayerDeath       EventType = "player_death"

	// Relay connection events
	EventRelayStateChanged EventType = "relay_state_changed"
	EventRelayInbound      EventType = "relay_inbound"
	EventRelayOutbound     EventType = "relay_outbound"

	// System events
	EventStatusSnapshot EventType = "status_snapshot"
	EventShutdown       EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// Player identifies the actor behind a game event. Console marks the
// administrative server console, whose chat must never be relayed.
type Player struct {
	Name    string `json:"name"`
	Console bool   `json:"console"`
}

// ChatPayload carries a chat line typed by a player or the console.
type ChatPayload struct {
	Player Player `json:"player"`
	Text   string `json:"text"`
}

// PlayerPayload carries a login or logout event.
type PlayerPayload struct {
	Player Player `json:"player"`
}

// LangFormatter is implemented by advancement and death payloads,
// which own their language-aware text rendering.
type LangFormatter interface {
	Format(lang string) string
}

// StateChangePayload is emitted on every relay connection state
// transition. RetryDelayMS is only meaningful when State is
// "disconnected".
type StateChangePayload struct {
	State        string `json:"state"`
	RetryDelayMS int64  `json:"retry_delay_ms,omitempty"`
}

// InboundPayload carries a forwarding-message received from the hub.
type InboundPayload struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// OutboundPayload carries a client-message written to the hub.
type OutboundPayload struct {
	Content string `json:"content"`
}
