// Package store persists named values in bbolt buckets.
//
// Each bucket maps names to records holding a value's type signature, its
// serialized bytes and an xxhash64 checksum; large values are compressed with
// zstd. A bucket can be exported as a sorted a(sv) array that varpack.ReadFile
// materializes and varpack.BSearchStr searches without decoding it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andreyvit/varpack"
	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
)

// DefaultCompressThreshold is the value size at which records get compressed.
const DefaultCompressThreshold = 4 * 1024

// TypeSnapshot is the type of Snapshot results: (name, value) records sorted
// by name.
var TypeSnapshot = varpack.MustType("a(sv)")

type Store struct {
	bdb     *bbolt.DB
	logger  *slog.Logger
	verbose bool

	compressThreshold int
	enc               *zstd.Encoder
	dec               *zstd.Decoder

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// CompressThreshold is the smallest value size that gets compressed.
	// Zero means DefaultCompressThreshold, negative disables compression.
	CompressThreshold int
}

func Open(path string, opt Options) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 256
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.CompressThreshold == 0 {
		opt.CompressThreshold = DefaultCompressThreshold
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{
		bdb:               bdb,
		logger:            opt.Logger,
		verbose:           opt.Verbose,
		compressThreshold: opt.CompressThreshold,
		enc:               enc,
		dec:               dec,
	}, nil
}

func (s *Store) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *Store) Close() error {
	err := s.bdb.Close()
	s.enc.Close()
	s.dec.Close()
	if err != nil {
		return fmt.Errorf("store: closing: %w", err)
	}
	return nil
}

// Put stores v under name, replacing any previous value. Untrusted values are
// validated first, so everything in the store is well-formed.
func (s *Store) Put(bucket, name string, v *varpack.Value) error {
	if v.Type().Kind() == varpack.KindDictEntry {
		return fmt.Errorf("store: put %s/%s: cannot store a bare dictionary entry: %w", bucket, name, varpack.ErrWrongType)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	rec := s.encodeRecord(v)
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(name), rec)
	})
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", bucket, name, err)
	}
	s.WriteCount.Add(1)
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: put", slog.String("bucket", bucket), slog.String("name", name), slog.String("type", v.Type().String()), slog.Int("size", v.Size()), slog.Int("stored", len(rec)))
	}
	return nil
}

// Get returns a copy of the value stored under name, or ErrNotFound.
func (s *Store) Get(bucket, name string) (*varpack.Value, error) {
	var v *varpack.Value
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}
		raw := b.Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		v, err = s.materialize(raw)
		if err != nil {
			return s.recordErr(bucket, name, err)
		}
		return nil
	})
	if err != nil {
		var re *RecordError
		if errors.Is(err, ErrNotFound) || errors.As(err, &re) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get %s/%s: %w", bucket, name, err)
	}
	s.ReadCount.Add(1)
	return v, nil
}

// recordErr must be called inside the transaction that read the record.
func (s *Store) recordErr(bucket, name string, err error) error {
	var re *RecordError
	if errors.As(err, &re) {
		re.Bucket, re.Name = bucket, name
		// Data aliases the bolt mmap, which can go away after the transaction.
		re.Data = append([]byte(nil), re.Data...)
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: corrupted record", slog.String("bucket", bucket), slog.String("name", name), slog.Any("err", err))
	}
	return err
}

// Delete removes name from the bucket. Deleting a missing name is a no-op.
func (s *Store) Delete(bucket, name string) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", bucket, name, err)
	}
	s.WriteCount.Add(1)
	return nil
}

// Names returns all names in the bucket, in byte-wise order.
func (s *Store) Names(bucket string) ([]string, error) {
	var names []string
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", bucket, err)
	}
	return names, nil
}

// Snapshot returns the whole bucket as a TypeSnapshot array, sorted by name
// in byte-wise order. A missing bucket yields an empty array.
func (s *Store) Snapshot(bucket string) (*varpack.Value, error) {
	bld := varpack.NewBuilder(TypeSnapshot)
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, raw []byte) error {
			v, err := s.materialize(raw)
			if err != nil {
				return s.recordErr(bucket, string(k), err)
			}
			defer v.Release()
			if v.Type().Kind() != varpack.KindVariant {
				v = varpack.NewVariant(v)
				defer v.Release()
			}
			entry := varpack.NewTuple(varpack.NewString(string(k)), v)
			defer entry.Release()
			return bld.Add(entry)
		})
	})
	if err != nil {
		bld.Discard()
		return nil, err
	}
	return bld.End()
}

// Export writes Snapshot(bucket) to path atomically.
func (s *Store) Export(bucket, path string) error {
	snap, err := s.Snapshot(bucket)
	if err != nil {
		return err
	}
	defer snap.Release()
	if err := varpack.WriteFile(path, snap); err != nil {
		return err
	}
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: exported", slog.String("bucket", bucket), slog.String("path", path), slog.Int("size", snap.Size()))
	}
	return nil
}

type Stats struct {
	Values    int
	DataSize  int
	DataAlloc int
}

// Stats returns bucket statistics as reported by bolt.
func (s *Store) Stats(bucket string) (Stats, error) {
	var result Stats
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		bs := b.Stats()
		result = Stats{
			Values:    bs.KeyN,
			DataSize:  bs.LeafInuse + bs.InlineBucketInuse,
			DataAlloc: bs.BranchAlloc + bs.LeafAlloc,
		}
		return nil
	})
	return result, err
}

// Dump returns a human-readable listing of the bucket, one record per line.
func (s *Store) Dump(bucket string) (string, error) {
	var buf strings.Builder
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, raw []byte) error {
			var r record
			if err := r.decode(raw); err != nil {
				fmt.Fprintf(&buf, "%s: <%v>\n", k, err)
				return nil
			}
			v, err := s.materialize(raw)
			if err != nil {
				fmt.Fprintf(&buf, "%s: %s <%v>\n", k, r.String(), err)
				return nil
			}
			defer v.Release()
			fmt.Fprintf(&buf, "%s: %s = %s\n", k, r.String(), v.String())
			return nil
		})
	})
	return buf.String(), err
}
