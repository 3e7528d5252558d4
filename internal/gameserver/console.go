package gameserver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/relaybridge-project/relaybridge/internal/config"
)

// Console delivers text into the local game chat by writing tellraw
// commands to the game server's console pipe. It implements the relay
// chat sink.
type Console struct {
	mu   sync.Mutex
	path string
}

// NewConsole creates the console command writer. The pipe is opened
// per write so a restarting game server does not wedge the relay.
func NewConsole(cfg config.GameServerConfig) *Console {
	return &Console{path: cfg.ConsolePipe}
}

// tellraw is the JSON text component accepted by the game server.
type tellraw struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// Tell sends text to the given target ("@a" for everyone). Delivery
// failures are logged, never propagated: chat output is best effort.
func (c *Console) Tell(target, text, color string) {
	component, err := json.Marshal(tellraw{Text: text, Color: color})
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal tellraw component")
		return
	}

	cmd := fmt.Sprintf("tellraw %s %s\n", target, component)

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		log.Warn().Err(err).Str("pipe", c.path).Msg("console pipe unavailable, dropping chat output")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(cmd); err != nil {
		log.Warn().Err(err).Str("pipe", c.path).Msg("failed to write console command")
	}
}
