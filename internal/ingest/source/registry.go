package source

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// Registry holds the validated source configurations, in file order.
type Registry struct {
	byID  map[string]*Config
	order []string
	log   *logger.Logger
}

type registryFile struct {
	Sources []*Config `yaml:"sources"`
}

func LoadRegistry(path string, baseLog *logger.Logger) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source registry: %w", err)
	}
	defer f.Close()
	return ParseRegistry(f, baseLog)
}

func ParseRegistry(r io.Reader, baseLog *logger.Logger) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode source registry: %w", err)
	}

	reg := &Registry{
		byID: make(map[string]*Config, len(file.Sources)),
		log:  baseLog.With("component", "SourceRegistry"),
	}
	for i, cfg := range file.Sources {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if _, dup := reg.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", cfg.ID)
		}
		reg.byID[cfg.ID] = cfg
		reg.order = append(reg.order, cfg.ID)
	}
	reg.log.Info("Source registry loaded", "sources", len(reg.order))
	return reg, nil
}

func validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil source config")
	}
	if cfg.ID == "" {
		return fmt.Errorf("missing id")
	}
	if cfg.Funder == "" {
		return fmt.Errorf("source %q: missing funder", cfg.ID)
	}
	if cfg.DataLink == "" {
		return fmt.Errorf("source %q: missing data_link", cfg.ID)
	}
	switch cfg.Format {
	case FormatCSV, FormatJSON, FormatAPI, FormatHTML:
	default:
		return fmt.Errorf("source %q: unknown format %q", cfg.ID, cfg.Format)
	}
	if cfg.Currency != "" && !validCurrency(cfg.Currency) {
		return fmt.Errorf("source %q: currency must be an ISO 4217 code, got %q", cfg.ID, cfg.Currency)
	}
	if cfg.FunderID == "" {
		cfg.FunderID = cfg.ID
	}
	return nil
}

func validCurrency(raw string) bool {
	if len(raw) != 3 {
		return false
	}
	for _, r := range raw {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func (r *Registry) Get(id string) (*Config, bool) {
	cfg, ok := r.byID[id]
	return cfg, ok
}

func (r *Registry) All() []*Config {
	out := make([]*Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
