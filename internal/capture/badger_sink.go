package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// BadgerSink stores payloads in an embedded key-value store under payload/<n>.
type BadgerSink struct {
	db *badger.DB
}

type badgerRecord struct {
	Sequence   int             `json:"sequence"`
	URL        string          `json:"url"`
	CapturedAt time.Time       `json:"captured_at"`
	Body       json.RawMessage `json:"body,omitempty"`
	RawBody    []byte          `json:"raw_body,omitempty"`
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// OpenBadgerSink opens (or creates) the store at path. An empty path keeps
// everything in memory.
func OpenBadgerSink(path string, logger *zap.Logger) (*BadgerSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{logger.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return &BadgerSink{db: db}, nil
}

func payloadKey(sequence int) []byte {
	return []byte(fmt.Sprintf("payload/%d", sequence))
}

func (s *BadgerSink) Write(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := badgerRecord{Sequence: p.Sequence, URL: p.URL, CapturedAt: p.CapturedAt}
	if json.Valid(p.Body) {
		rec.Body = p.Body
	} else {
		rec.RawBody = p.Body
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode payload record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(payloadKey(p.Sequence), value)
	})
}

// Get reads a stored payload back.
func (s *BadgerSink) Get(sequence int) (Payload, error) {
	var rec badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(sequence))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Payload{}, fmt.Errorf("payload %d not found: %w", sequence, err)
	}
	if err != nil {
		return Payload{}, err
	}
	body := []byte(rec.Body)
	if len(body) == 0 {
		body = rec.RawBody
	}
	return Payload{Sequence: rec.Sequence, URL: rec.URL, Body: body, CapturedAt: rec.CapturedAt}, nil
}

// Count returns the number of stored payloads.
func (s *BadgerSink) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("payload/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerSink) Close() error {
	return s.db.Close()
}
