package app

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/qnabot/core/config"
	coredatabase "github.com/m3rciful/qnabot/core/database"
)

// Storage backends of the Q&A domain.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// QnAConfig configures the Q&A community.
type QnAConfig struct {
	// Storage is "postgres" (default) or "memory" for local runs.
	Storage string `yaml:"storage" envconfig:"QNA_STORAGE"`
	// Areas are seeded on startup; existing names are kept.
	Areas []string `yaml:"areas" envconfig:"QNA_AREAS"`
}

// Config is the full configuration of the bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
	QnA               QnAConfig           `yaml:"qna"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads, overlays and validates the configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core, database and Q&A sections.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	storage := strings.ToLower(strings.TrimSpace(c.QnA.Storage))
	if storage == "" {
		storage = StoragePostgres
	}
	switch storage {
	case StoragePostgres:
		if err := c.Database.Normalize(); err != nil {
			return err
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid qna.storage %q; allowed: postgres, memory", c.QnA.Storage)
	}
	c.QnA.Storage = storage

	areas := c.QnA.Areas[:0]
	for _, a := range c.QnA.Areas {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	c.QnA.Areas = areas
	return nil
}
