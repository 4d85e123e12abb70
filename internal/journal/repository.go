package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/stats"
	"codeberg.org/odysseus/odytelem/internal/wire"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	pending       map[string]Entry
	closed        bool
	closeOnce     sync.Once
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// NewRepository opens (or creates) the SQLite journal at cfg.Path and
// starts the background flusher.
func NewRepository(cfg Config, log logger.Logger) (Journal, error) {
	errFactory := errors.New()

	if cfg.Path == "" {
		return nil, errFactory.New(ErrInvalidPath)
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	dsn := cfg.Path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// one writer, and the flusher is the only one
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.Path, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Publish journal initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		pending:       make(map[string]Entry),
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	return repo, nil
}

func (r *repository) Record(topic string, frame wire.Frame, payload []byte) error {
	if topic == "" {
		return errors.New().WithMessage(ErrInvalidEntry, "empty topic")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrClosed)
	}

	count := r.pending[topic].Count + 1
	r.pending[topic] = Entry{
		Topic:   topic,
		Unit:    frame.Unit,
		Value:   frame.First(),
		Payload: append([]byte(nil), payload...),
		TimeUS:  frame.TimeUS,
		Count:   count,
	}

	return nil
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *repository) Entries() ([]Entry, error) {
	errFactory := errors.New()

	if err := r.Flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectPublicationsSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			value  float64
			timeUS int64
		)
		if err := rows.Scan(&e.Topic, &e.Unit, &value, &e.Payload, &timeUS, &e.Count); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		e.Value = float32(value)
		e.TimeUS = uint64(timeUS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return entries, nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		r.flushTicker.Stop()

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Publish journal closed")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			if err := r.Flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to flush publish journal")
			}
		case <-r.shutdownChan:
			if err := r.Flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to flush publish journal on close")
			}
			return
		}
	}
}

// flush writes pending entries in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.pending) == 0 || r.closed {
		return nil
	}

	errFactory := errors.New()
	start := time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(upsertPublicationSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, e := range r.pending {
		if _, err := stmt.Exec(e.Topic, e.Unit, float64(e.Value), e.Payload, int64(e.TimeUS), e.Count); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("topics", len(r.pending)).Msg("Flushed publish journal")
	clear(r.pending)
	stats.RecordJournalFlush(time.Since(start))

	return nil
}
