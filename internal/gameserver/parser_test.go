package gameserver

import (
	"testing"

	"github.com/relaybridge-project/relaybridge/internal/events"
)

func TestParseChatLine(t *testing.T) {
	p := NewParser("Server")

	tests := []struct {
		line        string
		wantName    string
		wantText    string
		wantConsole bool
	}{
		{"<Bob> hello", "Bob", "hello", false},
		{"[12:34:56] [Server thread/INFO]: <Bob> hello there", "Bob", "hello there", false},
		{"<Server> maintenance soon", "Server", "maintenance soon", true},
		{"[Server] restarting in 5", "Server", "restarting in 5", true},
	}

	for _, tt := range tests {
		event, ok := p.ParseLine(tt.line)
		if !ok {
			t.Errorf("ParseLine(%q) not recognized", tt.line)
			continue
		}
		if event.Type != events.EventPlayerChat {
			t.Errorf("ParseLine(%q) type = %v, want chat", tt.line, event.Type)
			continue
		}
		chat := event.Payload.(events.ChatPayload)
		if chat.Player.Name != tt.wantName || chat.Text != tt.wantText || chat.Player.Console != tt.wantConsole {
			t.Errorf("ParseLine(%q) = %+v, want name %q text %q console %v",
				tt.line, chat, tt.wantName, tt.wantText, tt.wantConsole)
		}
	}
}

func TestParseJoinLeave(t *testing.T) {
	p := NewParser("Server")

	event, ok := p.ParseLine("Bob joined the game")
	if !ok || event.Type != events.EventPlayerLogin {
		t.Fatalf("join line = %v/%v, want login event", event.Type, ok)
	}
	if got := event.Payload.(events.PlayerPayload).Player.Name; got != "Bob" {
		t.Fatalf("join player = %q, want Bob", got)
	}

	event, ok = p.ParseLine("[09:00:01] [Server thread/INFO]: Bob left the game")
	if !ok || event.Type != events.EventPlayerLogout {
		t.Fatalf("leave line = %v/%v, want logout event", event.Type, ok)
	}
}

func TestParseAdvancement(t *testing.T) {
	p := NewParser("Server")

	event, ok := p.ParseLine("Bob has made the advancement [Stone Age]")
	if !ok || event.Type != events.EventPlayerAdvancement {
		t.Fatalf("advancement line not recognized")
	}

	adv := event.Payload.(AdvancementEvent)
	if adv.Player != "Bob" || adv.Title != "Stone Age" {
		t.Fatalf("advancement = %+v", adv)
	}
	if got := adv.Format("en"); got != "Bob has made the advancement [Stone Age]" {
		t.Errorf("Format(en) = %q", got)
	}
	if got := adv.Format("zh-cn"); got != "Bob取得了进度[Stone Age]" {
		t.Errorf("Format(zh-cn) = %q", got)
	}
}

func TestParseDeath(t *testing.T) {
	p := NewParser("Server")

	tests := []struct {
		line       string
		wantKiller string
	}{
		{"Bob drowned", ""},
		{"Bob was slain by Zombie", "Zombie"},
		{"Bob fell from a high place", ""},
	}

	for _, tt := range tests {
		event, ok := p.ParseLine(tt.line)
		if !ok || event.Type != events.EventPlayerDeath {
			t.Errorf("ParseLine(%q) not recognized as death", tt.line)
			continue
		}
		death := event.Payload.(DeathEvent)
		if death.Player != "Bob" || death.Killer != tt.wantKiller {
			t.Errorf("ParseLine(%q) = %+v, want killer %q", tt.line, death, tt.wantKiller)
		}
		if got := death.Format("en"); got != tt.line {
			t.Errorf("Format(en) = %q, want log rendering %q", got, tt.line)
		}
	}

	death := DeathEvent{Player: "Bob", Killer: "Zombie", Message: "Bob was slain by Zombie"}
	if got := death.Format("zh-cn"); got != "Bob被Zombie杀死了" {
		t.Errorf("Format(zh-cn) = %q", got)
	}
}

func TestParseIgnoresNoise(t *testing.T) {
	p := NewParser("Server")

	lines := []string{
		"",
		"[12:00:00] [Server thread/INFO]: Preparing spawn area: 95%",
		"Done (3.2s)! For help, type \"help\"",
		"[12:00:00] [Worker-Main-3/WARN]: Chunk save took 120ms",
	}
	for _, line := range lines {
		if event, ok := p.ParseLine(line); ok {
			t.Errorf("ParseLine(%q) = %v, want ignored", line, event.Type)
		}
	}
}

func TestParsePayloadsImplementLangFormatter(t *testing.T) {
	var _ events.LangFormatter = AdvancementEvent{}
	var _ events.LangFormatter = DeathEvent{}
}
