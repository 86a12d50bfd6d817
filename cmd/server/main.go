package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manpreetbhatti/easel/internal/api"
	"github.com/manpreetbhatti/easel/internal/broadcast"
	"github.com/manpreetbhatti/easel/internal/config"
	"github.com/manpreetbhatti/easel/internal/db"
	"github.com/manpreetbhatti/easel/internal/discovery"
	"github.com/manpreetbhatti/easel/internal/journal"
	"github.com/manpreetbhatti/easel/internal/protocol"
	"github.com/manpreetbhatti/easel/internal/ratelimit"
	"github.com/manpreetbhatti/easel/internal/room"
	"github.com/manpreetbhatti/easel/internal/session"
	"github.com/manpreetbhatti/easel/internal/ws"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	logger := config.NewLogger(cfg)
	log := logrus.NewEntry(logger)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	journalService := journal.New(database, journal.Config{
		FlushInterval: cfg.JournalFlushInterval,
		BatchSize:     cfg.JournalBatchSize,
	}, log)
	journalService.Start()

	rooms := room.NewRegistry(room.WithObserver(journalService))
	hub := ws.NewHub(log)
	dispatcher := broadcast.NewDispatcher(hub, log)
	coordinator := session.NewCoordinator(rooms, dispatcher, log)

	wsHandler := ws.NewHandler(hub, coordinator, protocol.NewDecoder(cfg.RoomCodeLength), ws.Config{
		MessagesPerSecond: cfg.ClientMessagesPerSecond,
		MessageBurst:      cfg.ClientMessageBurst,
		SendBuffer:        ws.DefaultConfig().SendBuffer,
	}, log)

	apiLimiters := ratelimit.NewClientLimiters(cfg.APIRequestsPerSecond, cfg.APIRequestBurst)
	defer apiLimiters.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	api.New(rooms, hub, database, log).Routes(mux)

	handler := api.Logger(log, api.CORS(api.RateLimit(apiLimiters, mux)))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var advertiser *discovery.Advertiser
	if cfg.MDNSEnabled {
		advertiser, err = discovery.Advertise(cfg.MDNSInstance, cfg.Port, log)
		if err != nil {
			log.WithError(err).Warn("mDNS advertising disabled")
		}
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"database": cfg.DBPath,
			"env":      cfg.Env,
		}).Info("Easel server starting")
		log.Info("Endpoints:")
		log.Info("  - WebSocket: /ws?room={code}")
		log.Info("  - Health:    GET /health")
		log.Info("  - Stats:     GET /api/stats")
		log.Info("  - Rooms:     GET /api/rooms")
		log.Info("  - Room:      GET /api/rooms/{code}")
		log.Info("  - Sessions:  GET /api/sessions?room={code}")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("ListenAndServe")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	if advertiser != nil {
		if err := advertiser.Shutdown(); err != nil {
			log.WithError(err).Warn("mDNS shutdown failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	journalService.Stop()
	written, dropped := journalService.Stats()
	log.WithFields(logrus.Fields{"written": written, "dropped": dropped}).Info("Server exited")
}
