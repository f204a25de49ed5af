package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/config"
	"github.com/five82/roomwatch/internal/logging"
	"github.com/five82/roomwatch/internal/metrics"
	"github.com/five82/roomwatch/internal/prefs"
	"github.com/five82/roomwatch/internal/refresh"
	"github.com/five82/roomwatch/internal/session"
	"github.com/five82/roomwatch/internal/state"
	"github.com/five82/roomwatch/internal/ui"
)

// Options configure the roomwatch application.
type Options struct {
	ConfigPath  string
	PrefsPath   string // empty uses default ~/.config/roomwatch/prefs.toml
	SessionPath string // empty uses default ~/.config/roomwatch/session.toml
	PollEvery   int    // seconds; zero uses the config value
	Date        string // yyyy-mm-dd; empty follows today
}

// Run boots the roomwatch TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}
	day, err := parseDate(opts.Date, time.Local)
	if err != nil {
		return err
	}

	logger, closer, err := logging.Open(logging.Options{Path: cfg.LogPath(), Level: logging.ParseLevel(cfg.LogLevel)})
	if err != nil {
		// The TUI owns the terminal; run without a log rather than fail.
		logger = logging.Discard()
	}
	defer closer.Close()
	logger.Info("roomwatch starting", "api", cfg.APIURL, "poll", cfg.PollInterval)

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		logger.Warn("load prefs", "err", err)
	}
	sess, err := session.Load(opts.SessionPath)
	if err != nil {
		logger.Warn("load session", "err", err)
	}

	client, err := backend.NewClient(cfg.APIURL)
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}
	if sess.Valid() {
		client.SetToken(sess.Token)
	}

	reg := prometheus.NewRegistry()
	refreshMetrics := metrics.NewRefresh(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	store := state.NewRoomStore()
	readings, alerts := newCoordinators(client, cfg.PollInterval, logger, refreshMetrics)
	defer func() {
		readings.Stop()
		alerts.Stop()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := NewRoomPoller(store, client, cfg.PollInterval, logger)
	go poller.Run(runCtx)
	go syncReadings(runCtx, readings, store)

	return ui.Run(ui.Options{
		Context:      runCtx,
		API:          client,
		Store:        store,
		Readings:     readings,
		Alerts:       alerts,
		Session:      sess,
		SessionPath:  opts.SessionPath,
		Prefs:        userPrefs,
		PrefsPath:    opts.PrefsPath,
		LogPath:      cfg.LogPath(),
		Logger:       logger,
		RefreshRooms: poller.Trigger,
		Date:         day,
	})
}

// newCoordinators builds the two live-refresh loops the UI drives: sensor
// readings keyed by sensor id and alerts keyed by room id.
func newCoordinators(api backend.API, interval time.Duration, logger *slog.Logger, m *metrics.Refresh) (*refresh.Coordinator[backend.Details], *refresh.Coordinator[backend.Alert]) {
	readings := refresh.New(refresh.Options[backend.Details]{
		Name: "readings",
		Fetch: func(ctx context.Context, id string, q refresh.Query) ([]backend.Details, error) {
			return api.SensorDataByDate(ctx, id, q.Date)
		},
		Policy:   refresh.MergeReplace,
		Interval: interval,
		NotFound: backend.IsNotFound,
		Logger:   logger,
		Metrics:  m,
	})
	alerts := refresh.New(refresh.Options[backend.Alert]{
		Name: "alerts",
		Fetch: func(ctx context.Context, id string, q refresh.Query) ([]backend.Alert, error) {
			return api.AlertsByDate(ctx, id, q.Date)
		},
		Policy:   refresh.MergeAppendCount,
		Interval: interval,
		NotFound: backend.IsNotFound,
		Logger:   logger,
		Metrics:  m,
	})
	return readings, alerts
}

// syncReadings copies fetched readings into the shared room state so every
// view sees the same sensor details.
func syncReadings(ctx context.Context, readings *refresh.Coordinator[backend.Details], store *state.RoomStore) {
	changes, unsubscribe := readings.Subscribe()
	defer unsubscribe()

	// Merges that happened before the subscription sent no signal we can see.
	copyReadings(readings, store)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			copyReadings(readings, store)
		}
	}
}

func copyReadings(readings *refresh.Coordinator[backend.Details], store *state.RoomStore) {
	for _, e := range readings.Snapshot() {
		if len(e.Items) > 0 {
			store.UpdateSensorDetails(e.ID, e.Items)
		}
	}
}

// parseDate reads a yyyy-mm-dd flag value in loc. Empty means today.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation(backend.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be in yyyy-mm-dd form")
	}
	return day, nil
}
