package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/clique/tui/internal/app"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/config"
	"github.com/clique/tui/internal/logging"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/realtime"
	"github.com/clique/tui/internal/seen"
	"github.com/clique/tui/internal/session"
	"github.com/clique/tui/internal/views/debug"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, logFile, err := logging.New(cfg.Log.Level, cfg.Log.File, nil)
	if err != nil {
		return err
	}
	defer logFile.Close()

	hook := debug.NewHook(128)
	log.AddHook(hook)

	db, err := session.OpenBunt(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	store := session.NewStore(db)
	if err := store.Restore(); err != nil {
		log.WithError(err).Warn("discarding unreadable saved session")
	}

	jar, err := session.NewCookieJar(db, cfg.API.BaseURL)
	if err != nil {
		return err
	}

	bridge := app.NewBridge(64)
	unsubscribe := store.Subscribe(bridge.SessionChanged)
	defer unsubscribe()

	pipe := client.NewPipeline(client.PipelineConfig{
		BaseURL:        cfg.API.BaseURL,
		HTTPClient:     &http.Client{Jar: jar, Timeout: cfg.API.Timeout},
		Store:          store,
		Log:            log,
		RefreshPath:    cfg.Auth.RefreshPath,
		RefreshTimeout: cfg.Auth.RefreshTimeout,
		StrictLogout:   cfg.Auth.LogoutOnTransientRefreshFailure,
		OnSessionEnded: bridge.SessionEnded,
		Forget:         jar.Forget,
	})
	api := client.New(pipe, store, jar.Forget, log)

	bus := notify.NewBus(log)
	rt := realtime.NewManager(realtime.Config{
		URL:           cfg.Realtime.URL,
		Dialer:        realtime.WebsocketDialer{HandshakeTimeout: cfg.Realtime.HandshakeLimit},
		Bus:           bus,
		Log:           log,
		ReconnectBase: cfg.Realtime.ReconnectBase,
		ReconnectMax:  cfg.Realtime.ReconnectMax,
		PingInterval:  cfg.Realtime.PingInterval,
		PongTimeout:   cfg.Realtime.PongTimeout,
		WriteTimeout:  cfg.Realtime.WriteTimeout,
		OnState:       bridge.RealtimeState,
	})
	defer rt.Close()

	reporter := seen.NewReporter(api, log,
		seen.WithThreshold(cfg.Seen.Threshold),
		seen.WithDwell(cfg.Seen.Dwell),
	)
	defer reporter.Close()

	m := app.New(app.Deps{
		API:      api,
		Store:    store,
		Realtime: rt,
		Bus:      bus,
		Tracker:  reporter,
		Bridge:   bridge,
		LogHook:  hook,
		Log:      log,
	})
	rt.Attach(store)

	log.WithFields(logrus.Fields{
		"api":      cfg.API.BaseURL,
		"realtime": cfg.Realtime.URL,
	}).Info("starting clique")

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}

// defaultConfigPath honours CLIQUE_CONFIG, then the user config dir.
func defaultConfigPath() string {
	if p := os.Getenv("CLIQUE_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "clique", "config.yaml")
}
