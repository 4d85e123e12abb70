package journal

import (
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/wire"
)

// No-op implementation
type noopJournal struct{}

// Noop returns a journal that discards everything.
func Noop() Journal {
	return noopJournal{}
}

// New opens the journal described by cfg, or a no-op journal when it is
// disabled.
func New(cfg Config) (Journal, error) {
	errFactory := errors.New()
	log := logger.For("journal")

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Publish journal disabled, using no-op journal")
		return Noop(), nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create journal repository")
		return nil, err
	}

	return repo, nil
}

func (noopJournal) Record(string, wire.Frame, []byte) error {
	return nil
}

func (noopJournal) Flush() error {
	return nil
}

func (noopJournal) Entries() ([]Entry, error) {
	return nil, nil
}

func (noopJournal) Close() error {
	return nil
}
