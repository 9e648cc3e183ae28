package plugin

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	Rt "github.com/Eztof/PID/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// trendPrefix namespaces trend keys inside the database
var trendPrefix = []byte("trend/")

type BadgerStore struct {
	MU        sync.Mutex
	DB        *badger.DB
	BatchSize int
	Buffer    []*Rt.Trend
}

// NewBadgerStore opens the trend cache at path.
// An empty path keeps everything in memory.
func NewBadgerStore(path string, batchSize int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		slog.Error("BadgerStore failed to open database", slog.Any("error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}

	slog.Info("BadgerStore opened",
		slog.String("path", path),
		slog.Int("batchSize", batchSize))

	return &BadgerStore{
		DB:        db,
		BatchSize: batchSize,
		Buffer:    make([]*Rt.Trend, 0, batchSize),
	}, nil
}

// WriteTrend queues up a batch of trends,
// when batchsize is reached, it calls WriteBatch with the batch
func (bs *BadgerStore) WriteTrend(trend *Rt.Trend) error {
	bs.MU.Lock()
	defer bs.MU.Unlock()

	bs.Buffer = append(bs.Buffer, trend)
	if len(bs.Buffer) >= bs.BatchSize {
		return bs.flushLocked() // private Flush that does not lock
	}
	return nil
}

// WriteBatch performs the key/value creation to be stored
// and actually calls BadgerDB to write the data
func (bs *BadgerStore) WriteBatch(trends []*Rt.Trend) error {
	wb := bs.DB.NewWriteBatch()
	defer wb.Cancel()

	for _, tr := range trends {
		v, err := TrendEncode(tr)
		if err != nil {
			return fmt.Errorf("trend encode error: %w", err)
		}
		if err := wb.Set(TrendKey(tr.Name), v); err != nil {
			slog.Error("BadgerStore failed to set key in batch",
				slog.Any("error", err),
				slog.String("trend", tr.Name))
			return fmt.Errorf("write batch error: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		slog.Error("BadgerStore failed to flush batch", slog.Any("error", err))
		return fmt.Errorf("batch flush error: %w", err)
	}

	return nil
}

// ReplacePrefix makes the trends the only ones stored under prefix.
// Stale keys are deleted in the same batch that writes the new trends.
func (bs *BadgerStore) ReplacePrefix(prefix string, trends []*Rt.Trend) error {
	keep := make(map[string]bool, len(trends))
	for _, tr := range trends {
		keep[tr.Name] = true
	}

	var stale [][]byte
	err := bs.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = TrendKey(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !keep[string(key[len(trendPrefix):])] {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prefix scan error: %w", err)
	}

	wb := bs.DB.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("write batch delete error: %w", err)
		}
	}
	for _, tr := range trends {
		v, err := TrendEncode(tr)
		if err != nil {
			return fmt.Errorf("trend encode error: %w", err)
		}
		if err := wb.Set(TrendKey(tr.Name), v); err != nil {
			return fmt.Errorf("write batch error: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		slog.Error("BadgerStore failed to flush batch", slog.Any("error", err))
		return fmt.Errorf("batch flush error: %w", err)
	}
	if len(stale) > 0 {
		slog.Debug("BadgerStore dropped stale trends",
			slog.String("prefix", prefix),
			slog.Int("count", len(stale)))
	}
	return nil
}

// Flush is the public method that blocks,
// it sends data to WriteBatch and then clears the buffer
func (bs *BadgerStore) Flush() error {
	bs.MU.Lock()
	defer bs.MU.Unlock()

	if len(bs.Buffer) == 0 {
		return nil
	}
	return bs.flushLocked()
}

// flushLocked mimics Flush without locking, called by WriteTrend
func (bs *BadgerStore) flushLocked() error {
	err := bs.WriteBatch(bs.Buffer)
	bs.Buffer = bs.Buffer[:0] // Clear but keep capacity
	return err
}

// Close returns a Flush error but still attempts to close
func (bs *BadgerStore) Close() error {
	slog.Info("BadgerStore closing, flushing buffer",
		slog.Int("bufferSize", len(bs.Buffer)))
	flushErr := bs.Flush()
	closeErr := bs.DB.Close()

	if flushErr != nil {
		slog.Error("BadgerStore failed to flush on close", slog.Any("error", flushErr))
		return fmt.Errorf("flush failed, close may have failed: %w", flushErr)
	}

	if closeErr != nil {
		slog.Error("BadgerStore failed to close database", slog.Any("error", closeErr))
		return fmt.Errorf("close failed: %w", closeErr)
	}

	slog.Info("BadgerStore closed successfully")
	return nil
}

func (bs *BadgerStore) Type() string { return "BadgerDB" }

// ErrTrendNotFound is returned by ReadTrend for unknown names
var ErrTrendNotFound = errors.New("trend not found")

// ReadTrend fetches a single trend by name.
// Buffered trends are not visible until flushed.
func (bs *BadgerStore) ReadTrend(name string) (*Rt.Trend, error) {
	var trend *Rt.Trend

	err := bs.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(TrendKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTrendNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			trend, err = TrendDecode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return trend, nil
}

// TrendKey builds the key for a trend name
func TrendKey(name string) []byte {
	key := make([]byte, 0, len(trendPrefix)+len(name))
	key = append(key, trendPrefix...)
	return append(key, name...)
}

// TrendEncode serializes the trend struct for data storage
func TrendEncode(tr *Rt.Trend) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(tr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TrendDecode deserializes the trend data
func TrendDecode(data []byte) (*Rt.Trend, error) {
	var tr Rt.Trend
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	err := dec.Decode(&tr)
	return &tr, err
}

// QueryRange retrieves trends whose first sample lies within [start, end)
func (bs *BadgerStore) QueryRange(start, end time.Time) ([]*Rt.Trend, error) {
	var trends []*Rt.Trend

	// db.View() callback
	// BadgerDB provides a transaction in which to get item.Value()
	err := bs.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = trendPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(trendPrefix); it.ValidForPrefix(trendPrefix); it.Next() {
			item := it.Item()

			// item.Value() callback
			// BadgerDB passes bytes to the anon func
			err := item.Value(func(val []byte) error {
				tr, err := TrendDecode(val)
				if err != nil {
					slog.Error("BadgerStore failed to decode trend", slog.Any("error", err))
					return fmt.Errorf("trend decode error: %w", err)
				}

				if len(tr.Points) == 0 {
					return nil
				}

				// Filter by time range
				first := tr.Points[0].Timestamp
				if !first.Before(start) && first.Before(end) {
					trends = append(trends, tr)
				}

				return nil
			})
			if err != nil {
				slog.Error("BadgerStore callback failure", slog.Any("error", err))
				return fmt.Errorf("item data error: %w", err)
			}
		}
		return nil
	})

	slog.Info("BadgerStore QueryRange", slog.Int("count", len(trends)))

	return trends, err
}
