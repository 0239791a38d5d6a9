package main

import (
	"fmt"
	"os"

	"tunnelcore/internal/app"
	"tunnelcore/internal/autobind"
	"tunnelcore/internal/config"
	"tunnelcore/internal/db"
	"tunnelcore/internal/logger"
	"tunnelcore/internal/secrets"
	"tunnelcore/internal/store"
	"tunnelcore/internal/tunnel"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// session holds everything a command needs. Close releases the database.
type session struct {
	cfg        *config.Config
	db         *gorm.DB
	svc        *app.Service
	controller *tunnel.LocalController
}

func (s *session) Close() {
	if s.db != nil {
		if err := db.Close(s.db); err != nil {
			logger.Log.Warnf("Failed to close database: %v", err)
		}
	}
}

func openSession() (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	secretStore, err := secrets.Open(cfg.Secrets)
	if err != nil {
		db.Close(database)
		return nil, fmt.Errorf("error opening secret store: %w", err)
	}

	records := store.NewGormRecords(database)
	diagnostics := tunnel.NewDiagnostics(records, tunnel.DefaultDiagnosticsMaxAge)
	controller := tunnel.NewLocalController(diagnostics)

	var binder *autobind.Client
	if cfg.AutoBind.Endpoint != "" {
		token := ""
		if cfg.AutoBind.TokenEnv != "" {
			token = os.Getenv(cfg.AutoBind.TokenEnv)
		}
		binder = autobind.New(autobind.Config{
			Endpoint: cfg.AutoBind.Endpoint,
			Token:    token,
			Timeout:  cfg.AutoBind.Timeout,
		})
	}

	svc := app.New(cfg, app.Deps{
		Profiles:    store.NewProfileStore(records, secretStore),
		Controller:  controller,
		Diagnostics: diagnostics,
		Binder:      binder,
	})

	logger.Log.Debugf("Using database %s, secrets backend %s, mode %s", cfg.Database.Path, cfg.Secrets.Backend, cfg.Tunnel.Mode)
	return &session{cfg: cfg, db: database, svc: svc, controller: controller}, nil
}

func mustSession() *session {
	rt, err := openSession()
	if err != nil {
		logger.Log.Fatalf("%v", err)
	}
	return rt
}

func parseProfileID(arg string) uuid.UUID {
	id, err := uuid.Parse(arg)
	if err != nil {
		logger.Log.Fatalf("Invalid profile id %q: %v", arg, err)
	}
	return id
}
