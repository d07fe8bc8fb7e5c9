package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	appDirName = "radio-tui"
	configName = "config.yaml"
	configType = "yaml"
	envPrefix  = "RADIO_TUI"

	keyVolume        = "volume"
	keyLastStationID = "last_station_id"
	keyStationsFile  = "stations_file"

	keyDirectoryBaseURL     = "directory.base_url"
	keyDirectoryCountryCode = "directory.country_code"
	keyDirectoryLimit       = "directory.limit"

	keyStreamUserAgent      = "stream.user_agent"
	keyStreamConnectTimeout = "stream.connect_timeout"
	keyStreamReadTimeout    = "stream.read_timeout"
	keyStreamSampleRate     = "stream.sample_rate"

	keyPresenceTray         = "presence.tray"
	keyPresenceNotify       = "presence.notify"
	keyPresenceFailureGrace = "presence.failure_grace"

	keyServerPort = "server.port"
)

// Config is the application configuration
type Config struct {
	LastStationID string  // last played station id
	Volume        float64 // 0.0-1.0
	StationsFile  string  // optional local station catalog

	Directory DirectoryConfig
	Stream    StreamConfig
	Presence  PresenceConfig
	Server    ServerConfig
}

// DirectoryConfig points at the radio-browser station directory
type DirectoryConfig struct {
	BaseURL     string
	CountryCode string
	Limit       int
}

// StreamConfig tunes how streams are fetched
type StreamConfig struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	SampleRate     int
}

// PresenceConfig selects the presence indicators
type PresenceConfig struct {
	Tray         bool
	Notify       bool
	FailureGrace time.Duration
}

// ServerConfig configures the control API in daemon mode
type ServerConfig struct {
	Port int
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Volume: 0.8,
		Directory: DirectoryConfig{
			BaseURL:     "https://de1.api.radio-browser.info",
			CountryCode: "US",
			Limit:       1000,
		},
		Stream: StreamConfig{
			UserAgent:      "radio-tui/1.0",
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    10 * time.Second,
			SampleRate:     44100,
		},
		Presence: PresenceConfig{
			Tray:         true,
			Notify:       true,
			FailureGrace: 5 * time.Second,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// DefaultPath returns the config file path under the user config directory,
// falling back to the current directory
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}

	return filepath.Join(configDir, appDirName, configName)
}

// Store loads, persists and watches the config file
type Store struct {
	logger *zap.SugaredLogger
	path   string

	// fileMu serializes every viper access and every read or write of the
	// file. viper is not safe for concurrent use.
	fileMu sync.Mutex
	viper  *viper.Viper

	mu              sync.RWMutex
	current         Config
	reloadConsumers []chan Config
	watcher         *fsnotify.Watcher
}

// NewStore creates a Store for path, or DefaultPath when path is empty
func NewStore(logger *zap.SugaredLogger, path string) (*Store, error) {
	logger = logger.Named("config")

	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warnw("Failed to create config directory", "path", path, "error", err)
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	s := &Store{
		logger:  logger,
		viper:   v,
		path:    path,
		current: DefaultConfig(),
	}

	logger.Debugw("Created config store instance", "path", path)

	return s, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault(keyVolume, d.Volume)
	v.SetDefault(keyLastStationID, d.LastStationID)
	v.SetDefault(keyStationsFile, d.StationsFile)

	v.SetDefault(keyDirectoryBaseURL, d.Directory.BaseURL)
	v.SetDefault(keyDirectoryCountryCode, d.Directory.CountryCode)
	v.SetDefault(keyDirectoryLimit, d.Directory.Limit)

	v.SetDefault(keyStreamUserAgent, d.Stream.UserAgent)
	v.SetDefault(keyStreamConnectTimeout, d.Stream.ConnectTimeout.String())
	v.SetDefault(keyStreamReadTimeout, d.Stream.ReadTimeout.String())
	v.SetDefault(keyStreamSampleRate, d.Stream.SampleRate)

	v.SetDefault(keyPresenceTray, d.Presence.Tray)
	v.SetDefault(keyPresenceNotify, d.Presence.Notify)
	v.SetDefault(keyPresenceFailureGrace, d.Presence.FailureGrace.String())

	v.SetDefault(keyServerPort, d.Server.Port)
}

// BindFlags lets command-line flags override file values. Flags that are not
// defined on flags are skipped.
func (s *Store) BindFlags(flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"port":     keyServerPort,
		"stations": keyStationsFile,
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	for flagName, key := range bindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := s.viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}

	return nil
}

// Path returns the config file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file. A missing file is not an error; defaults are
// used instead.
func (s *Store) Load() error {
	s.logger.Debugw("Loading config", "path", s.path)

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	return s.readLocked()
}

// readLocked re-reads the file into viper and repopulates the current
// config. fileMu must be held.
func (s *Store) readLocked() error {
	if err := s.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			s.logger.Infow("Config file not found, using defaults", "path", s.path)
		} else {
			s.logger.Warnw("Viper failed to read config file", "error", err)
			return fmt.Errorf("read config file: %w", err)
		}
	}

	s.populate()

	return nil
}

// Current returns the most recently loaded config
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SaveLastStation persists the last played station and volume. Only those
// two keys change in the file; other file values are kept as they are and
// flag or environment overrides are never written.
func (s *Store) SaveLastStation(stationID string, volume float64) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	values, err := s.readFileLocked()
	if err != nil {
		return err
	}

	values[keyLastStationID] = stationID
	values[keyVolume] = clampVolume(volume)

	out, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(s.path, out, 0644); err != nil {
		s.logger.Warnw("Failed to write config file", "path", s.path, "error", err)
		return fmt.Errorf("write config file: %w", err)
	}

	return s.readLocked()
}

// readFileLocked returns the raw top-level values of the config file, or an
// empty map when there is no file yet. fileMu must be held.
func (s *Store) readFileLocked() (map[string]any, error) {
	values := make(map[string]any)

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if values == nil {
		values = make(map[string]any)
	}

	return values, nil
}

// SubscribeToChanges returns a channel that receives the new config after
// every reload. Slow consumers only see the latest one.
func (s *Store) SubscribeToChanges() <-chan Config {
	c := make(chan Config, 1)

	s.mu.Lock()
	s.reloadConsumers = append(s.reloadConsumers, c)
	s.mu.Unlock()

	return c
}

// WatchConfigFileChanges reloads the config whenever the file is written and
// hands the result to subscribers. The watch is in place when it returns.
func (s *Store) WatchConfigFileChanges() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warnw("Failed to create config watcher", "error", err)
		return fmt.Errorf("create config watcher: %w", err)
	}

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		s.logger.Warnw("Failed to watch config directory", "path", s.path, "error", err)
		return fmt.Errorf("watch config directory: %w", err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		watcher.Close()
		return nil
	}
	s.watcher = watcher
	s.mu.Unlock()

	go s.watch(watcher)

	s.logger.Debugw("Watching config file for changes", "path", s.path)

	return nil
}

func (s *Store) watch(watcher *fsnotify.Watcher) {
	target := filepath.Clean(s.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			s.logger.Debugw("Config file modified, reloading", "event", event.Op.String())

			s.fileMu.Lock()
			err := s.readLocked()
			s.fileMu.Unlock()

			if err != nil {
				// most likely a partial write, the next event carries the rest
				s.logger.Debugw("Failed to reload config", "error", err)
				continue
			}

			s.notifyConsumers()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// StopWatchingConfigFile stops reacting to file changes
func (s *Store) StopWatchingConfigFile() {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher == nil {
		return
	}

	if err := watcher.Close(); err != nil {
		s.logger.Debugw("Failed to close config watcher", "error", err)
	}
}

// populate must be called with fileMu held
func (s *Store) populate() {
	v := s.viper

	cfg := Config{
		LastStationID: v.GetString(keyLastStationID),
		Volume:        clampVolume(v.GetFloat64(keyVolume)),
		StationsFile:  v.GetString(keyStationsFile),
		Directory: DirectoryConfig{
			BaseURL:     strings.TrimRight(v.GetString(keyDirectoryBaseURL), "/"),
			CountryCode: strings.ToUpper(v.GetString(keyDirectoryCountryCode)),
			Limit:       v.GetInt(keyDirectoryLimit),
		},
		Stream: StreamConfig{
			UserAgent:      v.GetString(keyStreamUserAgent),
			ConnectTimeout: v.GetDuration(keyStreamConnectTimeout),
			ReadTimeout:    v.GetDuration(keyStreamReadTimeout),
			SampleRate:     v.GetInt(keyStreamSampleRate),
		},
		Presence: PresenceConfig{
			Tray:         v.GetBool(keyPresenceTray),
			Notify:       v.GetBool(keyPresenceNotify),
			FailureGrace: v.GetDuration(keyPresenceFailureGrace),
		},
		Server: ServerConfig{
			Port: v.GetInt(keyServerPort),
		},
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.logger.Debugw("Config values populated",
		"volume", cfg.Volume,
		"lastStationID", cfg.LastStationID,
		"directory", cfg.Directory.BaseURL,
		"countryCode", cfg.Directory.CountryCode)
}

func (s *Store) notifyConsumers() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, consumer := range s.reloadConsumers {
		// drop a stale pending value so the consumer sees the latest
		select {
		case <-consumer:
		default:
		}
		select {
		case consumer <- s.current:
		default:
		}
	}
}

func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}
