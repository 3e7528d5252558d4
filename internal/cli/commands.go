// Package cli implements the interactive command-line interface for
// RelayBridge.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/db"
	"github.com/relaybridge-project/relaybridge/internal/events"
	"github.com/relaybridge-project/relaybridge/internal/relay"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	conn     *relay.Conn
	history  *db.HistoryStore
}

// NewCLI creates a new CLI handler. history may be nil when the
// message history store is disabled.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, conn *relay.Conn, history *db.HistoryStore) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		conn:     conn,
		history:  history,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nRelayBridge CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	reader := bufio.NewReader(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("relaybridge> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "say":
		return c.cmdSay(args)
	case "reconnect":
		return c.cmdReconnect()
	case "history":
		return c.cmdHistory(args)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down RelayBridge...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                   RelayBridge CLI Commands                   ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show relay connection status             ║")
	fmt.Println("║  say <message>      Send a chat message to the hub           ║")
	fmt.Println("║  reconnect          Reconnect to the relay hub               ║")
	fmt.Println("║  history [n]        Show the last n relayed messages         ║")
	fmt.Println("║  setconfig <k> <v>  Update a configuration value             ║")
	fmt.Println("║  quit               Shutdown RelayBridge                     ║")
	fmt.Println("║  help               Show this help message                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays relay status in a formatted table.
func (c *CLI) printStatus() {
	stats := c.conn.Stats()

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Client", "State", "Retry Delay", "Sent", "Received", "Dropped", "Registrations", "Proto Errors"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	retryDelay := "-"
	if stats.RetryDelayMS > 0 {
		retryDelay = (time.Duration(stats.RetryDelayMS) * time.Millisecond).String()
	}

	tw.Append([]string{
		c.cfg.MultiChat.ClientName(),
		strings.ToUpper(stats.State),
		retryDelay,
		fmt.Sprintf("%d", stats.Sent),
		fmt.Sprintf("%d", stats.Received),
		fmt.Sprintf("%d", stats.Dropped),
		fmt.Sprintf("%d", stats.Registrations),
		fmt.Sprintf("%d", stats.ProtocolErrors),
	})

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdSay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: say <message>")
	}

	message := strings.Join(args, " ")
	if err := c.conn.Send(message); err != nil {
		return fmt.Errorf("message not sent: %w", err)
	}
	fmt.Printf("Sent: %s\n", message)
	return nil
}

func (c *CLI) cmdReconnect() error {
	if c.conn.State() == relay.StateRegistered {
		fmt.Println("Already connected to the relay hub")
		return nil
	}
	c.conn.Reconnect()
	fmt.Println("Reconnection initiated")
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	if c.history == nil {
		return fmt.Errorf("message history is disabled")
	}

	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	messages, err := c.history.Recent(limit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Println("No messages recorded")
		return nil
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Time", "Direction", "Source", "Content"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, m := range messages {
		source := m.Source
		if source == "" {
			source = "-"
		}
		tw.Append([]string{
			m.Timestamp.Format("15:04:05"),
			m.Direction,
			source,
			m.Content,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateMultiChatField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}
