// Package relay implements the MultiChat hub client: the connection
// state machine with exponential-backoff reconnection and the event
// relay that bridges local game events with hub traffic.
package relay

// ConnectionState is the lifecycle state of the hub connection.
// StateRegistered is the only state in which outbound sends are
// permitted.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateRegistered
)

var stateStrings = map[ConnectionState]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateRegistered:   "registered",
}

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "disconnected"
}

// MarshalJSON serializes ConnectionState as a JSON string.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Transport is an asynchronous text-frame transport to the hub.
// Open never blocks; the outcome of a connection attempt is delivered
// through the bound TransportHandler.
type Transport interface {
	// Bind sets the handler receiving transport events. Must be
	// called before Open.
	Bind(h TransportHandler)
	// Open begins a connection attempt to the given URL.
	Open(url string)
	// Send writes one text frame. Only valid while open.
	Send(frame []byte) error
	// Close tears down the current connection, if any.
	Close()
}

// TransportHandler receives transport lifecycle callbacks.
type TransportHandler interface {
	// HandleOpen is called once per successful connection.
	HandleOpen()
	// HandleFrame is called for every received text frame.
	HandleFrame(frame []byte)
	// HandleClose is called when a connection attempt fails or an
	// established connection is lost.
	HandleClose(err error)
}

// Sink delivers text into the local game chat. Target "@a" addresses
// all players; color is an optional hex display color.
type Sink interface {
	Tell(target, text, color string)
}

// History records relayed messages for later inspection. Implemented
// by the sqlite store; a nil History disables recording.
type History interface {
	RecordOutbound(content string)
	RecordInbound(source, content string)
}
