package freeze

import (
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the freeze configuration.
type Config struct {
	// StorageKey is the backend key of the snapshot blob
	StorageKey string `yaml:"storageKey"`

	// LinkAttr marks anchors that are intercepted. Empty intercepts all anchors.
	LinkAttr string `yaml:"linkAttr"`

	// OptInAttr marks body elements of pages that are captured
	OptInAttr string `yaml:"optInAttr"`

	// AnnounceEvent is the broadcast scripts use to ask for a re-run on restore
	AnnounceEvent host.EventType `yaml:"announceEvent"`

	// RestoredEvent is dispatched after a restore has re-armed
	RestoredEvent host.EventType `yaml:"restoredEvent"`

	// StateMarker is the history state field marking tracked entries
	StateMarker string `yaml:"stateMarker"`

	// ScriptTimeout bounds each script load during a restore
	ScriptTimeout time.Duration `yaml:"scriptTimeout"`

	// CompactContent minifies snapshot markup before it is persisted
	CompactContent bool `yaml:"compactContent"`

	// MarkEntryOnArm marks the current history entry when a page is armed
	MarkEntryOnArm bool `yaml:"markEntryOnArm"`

	// Logger for freeze components
	Logger zerolog.Logger `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StorageKey:     snapshot.DefaultStorageKey,
		LinkAttr:       "data-freeze-link",
		OptInAttr:      "data-freeze",
		AnnounceEvent:  "infsub",
		RestoredEvent:  "freeze:restored",
		StateMarker:    "freeze",
		ScriptTimeout:  10 * time.Second,
		CompactContent: false,
		MarkEntryOnArm: true,
		Logger:         log.With().Str("component", "freeze").Logger(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StorageKey == "" {
		return fmt.Errorf("storageKey is required")
	}
	if c.OptInAttr == "" {
		return fmt.Errorf("optInAttr is required")
	}
	if c.AnnounceEvent == "" {
		return fmt.Errorf("announceEvent is required")
	}
	if c.RestoredEvent == "" {
		return fmt.Errorf("restoredEvent is required")
	}
	if c.AnnounceEvent == c.RestoredEvent {
		return fmt.Errorf("announceEvent and restoredEvent must differ (both %q)", c.AnnounceEvent)
	}
	if c.StateMarker == "" {
		return fmt.Errorf("stateMarker is required")
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("scriptTimeout must be > 0 (got %s)", c.ScriptTimeout)
	}
	return nil
}

// StoreOptions returns the snapshot store options matching the configuration.
func (c Config) StoreOptions() []snapshot.Option {
	opts := []snapshot.Option{
		snapshot.WithStorageKey(c.StorageKey),
		snapshot.WithLogger(c.Logger.With().Str("component", "snapshot-store").Logger()),
	}
	if c.CompactContent {
		opts = append(opts, snapshot.WithCompactor(snapshot.NewHTMLMinifier()))
	}
	return opts
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}
