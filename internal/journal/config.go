package journal

import (
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
)

const (
	defaultDirPerm       = 0o755
	defaultPath          = "/var/lib/odytelem/journal.db"
	defaultFlushInterval = 10 * time.Second
	backupDirName        = "backups"
)

type Config struct {
	Path          string
	FlushInterval time.Duration
	Enabled       bool
}

func DefaultConfig() Config {
	return Config{
		Path:          defaultPath,
		FlushInterval: defaultFlushInterval,
		Enabled:       false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the rest if the journal is enabled
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		return errFactory.New(ErrInvalidPath)
	}
	if c.FlushInterval <= 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value time.Duration
		}{
			Field: "flush_interval",
			Value: c.FlushInterval,
		})
	}
	return nil
}
