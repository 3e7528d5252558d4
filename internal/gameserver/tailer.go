package gameserver

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/events"
)

const tailPollInterval = 500 * time.Millisecond

// Tailer follows the game server console log and emits one bus event
// per recognized line. Only lines written after startup are relayed;
// the existing log content is skipped.
type Tailer struct {
	cfg    config.GameServerConfig
	bus    *events.EventBus
	parser *Parser

	// pending holds a partially written line until its newline shows
	// up in a later poll.
	pending []byte
}

// NewTailer creates a log tailer.
func NewTailer(cfg config.GameServerConfig, bus *events.EventBus) *Tailer {
	return &Tailer{
		cfg:    cfg,
		bus:    bus,
		parser: NewParser(cfg.ConsoleName),
	}
}

// Start follows the log until the context is cancelled. The log file
// may not exist yet or be rotated away; both are retried rather than
// treated as fatal.
func (t *Tailer) Start(ctx context.Context) error {
	log.Info().Str("file", t.cfg.LogFile).Msg("tailing game server log")

	var (
		file   *os.File
		reader *bufio.Reader
		offset int64
	)

	defer func() {
		if file != nil {
			file.Close()
		}
	}()

	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if file == nil {
			f, err := os.Open(t.cfg.LogFile)
			if err != nil {
				continue
			}
			// Start at the end: pre-existing lines are history, not
			// live events.
			end, err := f.Seek(0, io.SeekEnd)
			if err != nil {
				f.Close()
				continue
			}
			file = f
			offset = end
			reader = bufio.NewReader(file)
			log.Debug().Str("file", t.cfg.LogFile).Int64("offset", offset).Msg("log file opened")
		}

		// Rotation/truncation: drop the stale handle and reopen.
		if info, err := os.Stat(t.cfg.LogFile); err != nil || info.Size() < offset {
			log.Debug().Str("file", t.cfg.LogFile).Msg("log file rotated, reopening")
			file.Close()
			file = nil
			t.pending = nil
			continue
		}

		offset += t.drain(ctx, reader)
	}
}

// drain reads all complete lines currently available and returns the
// number of bytes consumed.
func (t *Tailer) drain(ctx context.Context, reader *bufio.Reader) int64 {
	var consumed int64
	for {
		chunk, err := reader.ReadString('\n')
		consumed += int64(len(chunk))
		if err != nil {
			// Partial line: keep it until the newline arrives.
			t.pending = append(t.pending, chunk...)
			return consumed
		}

		line := string(t.pending) + chunk
		t.pending = nil

		event, ok := t.parser.ParseLine(line[:len(line)-1])
		if !ok {
			continue
		}
		// Sequential dispatch keeps burst chat in log order all the
		// way to the hub.
		t.bus.EmitSync(ctx, event)
	}
}
