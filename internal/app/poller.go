package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/state"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// RoomSource lists the rooms of the signed-in user.
type RoomSource interface {
	Rooms(ctx context.Context) ([]backend.Room, error)
	Token() string
}

// RoomPoller keeps the shared RoomStore in step with the backend room list.
// It stays idle while no token is set.
type RoomPoller struct {
	store    *state.RoomStore
	source   RoomSource
	interval time.Duration
	log      *slog.Logger
	trigger  chan struct{}
}

// NewRoomPoller builds a poller. Call Run to start it.
func NewRoomPoller(store *state.RoomStore, source RoomSource, interval time.Duration, logger *slog.Logger) *RoomPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RoomPoller{
		store:    store,
		source:   source,
		interval: interval,
		log:      logger.With("loop", "rooms"),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for an immediate poll. Calls made while one is pending collapse.
func (p *RoomPoller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Consecutive failures back off
// exponentially up to maxBackoff.
func (p *RoomPoller) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		p.poll(ctx)
		timer.Reset(calculateBackoff(p.store.Snapshot().ConsecutiveFailures, p.interval))
	}
}

// poll runs a single refresh and reports whether it touched the store.
func (p *RoomPoller) poll(ctx context.Context) bool {
	if p.source.Token() == "" {
		return false
	}
	rooms, err := p.source.Rooms(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.log.Warn("room poll failed", "err", err)
	}
	p.store.Update(rooms, err)
	return true
}

// calculateBackoff doubles base for every consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
