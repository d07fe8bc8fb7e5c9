package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"radio-tui/api"
	"radio-tui/config"
	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/player"
	"radio-tui/presence"
	"radio-tui/server"
	"radio-tui/tui"
)

const catalogTimeout = 15 * time.Second

type appOptions struct {
	configPath    string
	volumePercent int
	daemon        bool
	noTray        bool
	flags         *pflag.FlagSet
}

// app wires the session host to its surfaces and owns their lifetimes
type app struct {
	logger *zap.SugaredLogger
	opts   appOptions

	store  *config.Store
	engine *player.HTTPEngine
	tray   *presence.TrayIndicator
	host   *host.Host

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newApp(logger *zap.SugaredLogger, opts appOptions) (*app, error) {
	store, err := config.NewStore(logger, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("create config store: %w", err)
	}

	if err := store.BindFlags(opts.flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg := store.Current()

	volume := cfg.Volume
	if opts.volumePercent >= 0 {
		volume = float64(opts.volumePercent) / 100
	}

	engine := player.NewHTTPEngine(logger, player.StreamConfig{
		UserAgent:      cfg.Stream.UserAgent,
		ConnectTimeout: cfg.Stream.ConnectTimeout,
		ReadTimeout:    cfg.Stream.ReadTimeout,
		SampleRate:     cfg.Stream.SampleRate,
	}, volume)

	indicators := []presence.Indicator{presence.NewLogIndicator(logger)}

	if cfg.Presence.Notify {
		indicators = append(indicators, presence.NewNotifyIndicator(logger))
	}

	var tray *presence.TrayIndicator
	if cfg.Presence.Tray && !opts.noTray {
		tray = presence.NewTrayIndicator(logger)
		indicators = append(indicators, tray)
	}

	publisher := presence.NewPublisher(logger, cfg.Presence.FailureGrace, indicators...)
	h := host.New(logger, engine, publisher)

	if tray != nil {
		tray.Bind(h)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &app{
		logger: logger.Named("app"),
		opts:   opts,
		store:  store,
		engine: engine,
		tray:   tray,
		host:   h,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// run blocks until the app stops. With a tray the tray loop owns the main
// goroutine and the work runs beside it.
func (a *app) run() error {
	a.setupInterruptHandler()

	if a.tray == nil {
		a.logger.Debug("Running without tray icon")
		err := a.work()
		a.shutdown()
		return err
	}

	errCh := make(chan error, 1)
	a.tray.Run(func() {
		go func() {
			errCh <- a.work()
			a.tray.Quit()
		}()
	}, a.signalStop)

	a.shutdown()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (a *app) setupInterruptHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-c:
			a.logger.Debugw("Interrupted", "signal", sig)
			a.signalStop()
		case <-a.ctx.Done():
		}
		signal.Stop(c)
	}()
}

func (a *app) signalStop() {
	a.stopOnce.Do(func() {
		a.logger.Debug("Signalling stop")
		a.cancel()
	})
}

func (a *app) work() error {
	a.logger.Info("Run loop starting")

	if err := a.store.WatchConfigFileChanges(); err != nil {
		a.logger.Warnw("Config changes will not be picked up while running", "error", err)
	} else {
		go a.applyConfigChanges()
	}

	catalog, err := a.loadCatalog()
	if err != nil {
		return err
	}

	a.logger.Infow("Station catalog loaded", "stations", catalog.Len())

	if a.opts.daemon {
		cfg := a.store.Current()
		srv := server.NewServer(a.logger, cfg.Server.Port, a.host, catalog)
		if cfg.StationsFile == "" {
			srv.SearchDirectory(a.directoryClient())
		}
		return srv.Start(a.ctx)
	}

	cfg := a.store.Current()
	exit, err := tui.Run(a.ctx, a.logger, a.host, a.engine, a.store, tui.Options{
		Stations:      catalog.All(),
		LastStationID: cfg.LastStationID,
		AutoPlay:      cfg.LastStationID != "",
	})
	if err != nil {
		return err
	}

	if exit == tui.ExitBackground {
		a.logger.Info("Playing in the background")
		fmt.Println("Playing in the background, press Ctrl+C to stop.")
		<-a.ctx.Done()
	}

	return nil
}

// applyConfigChanges follows volume edits made to the config file while running
func (a *app) applyConfigChanges() {
	changes := a.store.SubscribeToChanges()

	for {
		select {
		case <-a.ctx.Done():
			return
		case cfg := <-changes:
			if math.Abs(cfg.Volume-a.engine.Volume()) > 0.001 {
				a.logger.Infow("Applying volume from config", "volume", cfg.Volume)
				a.engine.SetVolume(cfg.Volume)
			}
		}
	}
}

func (a *app) loadCatalog() (*model.Catalog, error) {
	cfg := a.store.Current()

	if cfg.StationsFile != "" {
		catalog, err := model.LoadCatalog(cfg.StationsFile)
		if err != nil {
			a.logger.Errorw("Failed to load station catalog", "path", cfg.StationsFile, "error", err)
			return nil, fmt.Errorf("load station catalog: %w", err)
		}
		return catalog, nil
	}

	client := a.directoryClient()

	ctx, cancel := context.WithTimeout(a.ctx, catalogTimeout)
	defer cancel()

	stations, err := client.Stations(ctx, cfg.Directory.Limit)
	if err == nil && len(stations) == 0 {
		a.logger.Infow("No stations for country, falling back to top voted", "countryCode", cfg.Directory.CountryCode)
		stations, err = client.TopVoted(ctx, cfg.Directory.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	if len(stations) == 0 {
		return nil, errors.New("station directory returned no playable stations")
	}

	return model.NewCatalog(stations), nil
}

func (a *app) directoryClient() *api.Client {
	cfg := a.store.Current()

	return api.NewClient(a.logger, api.Config{
		BaseURL:     cfg.Directory.BaseURL,
		CountryCode: cfg.Directory.CountryCode,
		UserAgent:   cfg.Stream.UserAgent,
		Timeout:     catalogTimeout,
	})
}

func (a *app) shutdown() {
	a.logger.Info("Stopping")

	a.signalStop()
	a.store.StopWatchingConfigFile()

	// stops playback and withdraws every indicator
	a.host.Close()

	if err := a.engine.Close(); err != nil {
		a.logger.Warnw("Failed to close audio engine", "error", err)
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = a.logger.Sync()
}
