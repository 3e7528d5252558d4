// Package gameserver adapts a local game server to the relay: it
// tails the server console log to produce game events and writes
// tellraw commands back through the server console pipe.
package gameserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/relaybridge-project/relaybridge/internal/events"
)

// Regex patterns for console log lines. The leading timestamp/thread
// prefix is optional so both raw and decorated logs parse.
var (
	reLinePrefix  = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[[^\]]+\]: `)
	reChat        = regexp.MustCompile(`^<([^>]+)> (.*)$`)
	reConsoleChat = regexp.MustCompile(`^\[([^\]]+)\] (.*)$`)
	reJoin        = regexp.MustCompile(`^(\S+) joined the game$`)
	reLeave       = regexp.MustCompile(`^(\S+) left the game$`)
	reAdvancement = regexp.MustCompile(`^(\S+) has made the advancement \[(.+)\]$`)
	reDeath       = regexp.MustCompile(`^(\S+) (was slain by (\S+)|drowned|fell from a high place|burned to death|starved to death|died)$`)
)

// Parser turns console log lines into relay events.
type Parser struct {
	// consoleName is the actor name console-originated chat appears
	// under (e.g. "[Server] hi" from a /say command).
	consoleName string
}

// NewParser creates a console log parser.
func NewParser(consoleName string) *Parser {
	if consoleName == "" {
		consoleName = "Server"
	}
	return &Parser{consoleName: consoleName}
}

// ParseLine parses one log line. The second return value is false for
// lines that carry no relay-relevant event.
func (p *Parser) ParseLine(line string) (events.Event, bool) {
	line = strings.TrimRight(reLinePrefix.ReplaceAllString(line, ""), "\r")

	if m := reChat.FindStringSubmatch(line); m != nil {
		return events.Event{
			Type:   events.EventPlayerChat,
			Source: "gameserver",
			Payload: events.ChatPayload{
				Player: events.Player{Name: m[1], Console: m[1] == p.consoleName},
				Text:   m[2],
			},
		}, true
	}

	if m := reConsoleChat.FindStringSubmatch(line); m != nil && m[1] == p.consoleName {
		return events.Event{
			Type:   events.EventPlayerChat,
			Source: "gameserver",
			Payload: events.ChatPayload{
				Player: events.Player{Name: m[1], Console: true},
				Text:   m[2],
			},
		}, true
	}

	if m := reJoin.FindStringSubmatch(line); m != nil {
		return events.Event{
			Type:    events.EventPlayerLogin,
			Source:  "gameserver",
			Payload: events.PlayerPayload{Player: events.Player{Name: m[1]}},
		}, true
	}

	if m := reLeave.FindStringSubmatch(line); m != nil {
		return events.Event{
			Type:    events.EventPlayerLogout,
			Source:  "gameserver",
			Payload: events.PlayerPayload{Player: events.Player{Name: m[1]}},
		}, true
	}

	if m := reAdvancement.FindStringSubmatch(line); m != nil {
		return events.Event{
			Type:    events.EventPlayerAdvancement,
			Source:  "gameserver",
			Payload: AdvancementEvent{Player: m[1], Title: m[2]},
		}, true
	}

	if m := reDeath.FindStringSubmatch(line); m != nil {
		return events.Event{
			Type:    events.EventPlayerDeath,
			Source:  "gameserver",
			Payload: DeathEvent{Player: m[1], Message: line, Killer: m[3]},
		}, true
	}

	return events.Event{}, false
}

// AdvancementEvent is an advancement notice. It owns its rendering,
// parameterized by language code.
type AdvancementEvent struct {
	Player string
	Title  string
}

// Format renders the advancement notice in the given language.
func (a AdvancementEvent) Format(lang string) string {
	if lang == "zh-cn" {
		return fmt.Sprintf("%s取得了进度[%s]", a.Player, a.Title)
	}
	return fmt.Sprintf("%s has made the advancement [%s]", a.Player, a.Title)
}

// DeathEvent is a player death notice. Message is the log-rendered
// text; Killer is set for slain-by deaths.
type DeathEvent struct {
	Player  string
	Message string
	Killer  string
}

// Format renders the death notice in the given language. Languages
// other than zh-cn use the server's own rendering.
func (d DeathEvent) Format(lang string) string {
	if lang != "zh-cn" {
		return d.Message
	}
	if d.Killer != "" {
		return fmt.Sprintf("%s被%s杀死了", d.Player, d.Killer)
	}
	return fmt.Sprintf("%s死了", d.Player)
}
