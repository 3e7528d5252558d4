// Package scheduler implements background tasks for RelayBridge,
// including history retention and periodic status snapshots.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/db"
	"github.com/relaybridge-project/relaybridge/internal/events"
	"github.com/relaybridge-project/relaybridge/internal/relay"
	"github.com/relaybridge-project/relaybridge/internal/util"
)

// snapshotInterval is how often a status snapshot event is emitted.
const snapshotInterval = 60 * time.Second

// purgeHour is the local hour the daily history purge runs at.
const purgeHour = 4

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	conn     *relay.Conn
	history  *db.HistoryStore
}

// NewScheduler creates a new task scheduler. history may be nil when
// the message history store is disabled.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, conn *relay.Conn, history *db.HistoryStore) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		conn:     conn,
		history:  history,
	}
}

// Start begins running all scheduled tasks.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.history != nil && s.cfg.ApplicationData.History.RetentionDays > 0 {
		go s.runPurgeLoop(ctx)
	}

	go s.runSnapshotLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runPurgeLoop purges expired history rows once a day.
func (s *Scheduler) runPurgeLoop(ctx context.Context) {
	for {
		nextRun := s.nextPurgeTime()
		sleepDuration := time.Until(nextRun)
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("history purge scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.purgeHistory()
		}
	}
}

// purgeHistory removes history rows older than the retention window.
func (s *Scheduler) purgeHistory() {
	retention := time.Duration(s.cfg.ApplicationData.History.RetentionDays) * 24 * time.Hour

	deleted, err := s.history.PurgeOlderThan(retention)
	if err != nil {
		log.Warn().Err(err).Msg("history purge failed")
		return
	}

	log.Info().
		Int64("deleted_rows", deleted).
		Dur("retention", retention).
		Msg("history purge completed")
}

// runSnapshotLoop periodically emits a status snapshot event. The
// telemetry handler forwards it to the MQTT broker when enabled.
func (s *Scheduler) runSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitSnapshot(ctx)
		}
	}
}

// emitSnapshot gathers connection and host stats into one event.
func (s *Scheduler) emitSnapshot(ctx context.Context) {
	snapshot := map[string]interface{}{
		"connection": s.conn.Stats(),
	}

	if cpuPercent, err := util.GetCPUUsage(); err == nil {
		snapshot["cpu_percent"] = cpuPercent
	}
	if memUsage, err := util.GetMemoryUsage(); err == nil {
		snapshot["memory"] = memUsage
	}
	if diskUsage, err := util.GetDiskUsage("."); err == nil {
		snapshot["disk"] = diskUsage
	}
	if s.history != nil {
		if count, err := s.history.Count(); err == nil {
			snapshot["history_count"] = count
		}
	}

	s.eventBus.Emit(ctx, events.Event{
		Type:    events.EventStatusSnapshot,
		Source:  "scheduler",
		Payload: snapshot,
	})
}

// nextPurgeTime returns the next daily purge time.
func (s *Scheduler) nextPurgeTime() time.Time {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), purgeHour, 0, 0, 0, now.Location())

	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}
