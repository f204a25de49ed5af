package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/roomwatch/internal/logging"
	"github.com/five82/roomwatch/internal/mockapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":8080", "listen address")
	broker := flag.String("mqtt", "", "MQTT broker to ingest readings from, e.g. tcp://localhost:1883 (optional)")
	topic := flag.String("topic", mockapi.DefaultTopic, "MQTT topic filter; the last level is the sensor id")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed for synthetic data")
	step := flag.Duration("step", 5*time.Second, "spacing of synthetic readings; 0 disables them")
	history := flag.Int("history", 3, "days of hourly history to generate")
	flag.Parse()

	logger := logging.New(os.Stderr, slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := mockapi.NewStore(mockapi.Options{Seed: *seed, Step: *step, History: *history})

	if *broker != "" {
		ing, err := mockapi.NewIngestor(store, *broker, *topic, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "roomwatch-mockapi: %v\n", err)
			return 1
		}
		defer ing.Close()
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mockapi.NewServer(store, time.Local).Handler(os.Stdout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock backend listening", "addr", *addr, "login", mockapi.DemoEmail, "password", mockapi.DemoPassword)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "roomwatch-mockapi: %v\n", err)
			return 1
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	return 0
}
