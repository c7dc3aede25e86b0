// Package store provides a thin bbolt wrapper for energyratio's local data
// store.
//
// The store is an intentional data accumulator: cases are written
// explicitly by import and synth commands and read by ratio commands.
// Nothing expires; you own your data.
//
// Buckets:
//
//	cases      full record sets keyed by case name
//	case_meta  CaseInfo summaries keyed by case name
//	results    saved ratio results keyed by sequence ID
//	_meta      internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/energyratio/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketCases    = []byte("cases")
	bucketCaseMeta = []byte("case_meta")
	bucketResults  = []byte("results")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"cases", "case_meta", "results"}

// Store wraps a bbolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.path
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCases, bucketCaseMeta, bucketResults, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Cases ────────────────────────────────────────────────────────────────────

// storedRecord is the JSON-safe on-disk form of a record. Pointer fields
// store NaN as JSON null, which encoding/json can handle.
type storedRecord struct {
	Time     *time.Time `json:"t,omitempty"`
	WS       *float64   `json:"ws"`
	WD       *float64   `json:"wd"`
	RefPower *float64   `json:"ref"`
	Power    []*float64 `json:"p"`
}

func recordToStored(r model.Record) storedRecord {
	row := storedRecord{
		WS:       model.Nullable(r.WindSpeed),
		WD:       model.Nullable(r.WindDirection),
		RefPower: model.Nullable(r.RefPowerValue()),
		Power:    make([]*float64, len(r.Power)),
	}
	if !r.Time.IsZero() {
		t := r.Time.UTC()
		row.Time = &t
	}
	for i, p := range r.Power {
		row.Power[i] = model.Nullable(p)
	}
	return row
}

func storedToRecord(row storedRecord) model.Record {
	r := model.Record{
		WindSpeed:     model.FromNullable(row.WS),
		WindDirection: model.FromNullable(row.WD),
		RefPower:      row.RefPower,
		Power:         make([]float64, len(row.Power)),
	}
	if row.Time != nil {
		r.Time = *row.Time
	}
	for i, p := range row.Power {
		r.Power[i] = model.FromNullable(p)
	}
	return r
}

// PutCase stores c under its name, replacing any previous case of that name,
// and records its summary. source describes where the data came from.
func (s *Store) PutCase(c model.Case, source string) (model.CaseInfo, error) {
	if c.Name == "" {
		return model.CaseInfo{}, fmt.Errorf("case name must not be empty")
	}
	rows := make([]storedRecord, len(c.Records))
	for i, r := range c.Records {
		rows[i] = recordToStored(r)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return model.CaseInfo{}, fmt.Errorf("encoding case %s: %w", c.Name, err)
	}
	info := model.CaseInfo{
		Name:        c.Name,
		Records:     len(c.Records),
		Turbines:    c.NumTurbines(),
		HasRefPower: c.HasRefPower(),
		Source:      source,
		StoredAt:    time.Now().UTC(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return model.CaseInfo{}, fmt.Errorf("encoding case info: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCases).Put([]byte(c.Name), data); err != nil {
			return err
		}
		return tx.Bucket(bucketCaseMeta).Put([]byte(c.Name), meta)
	})
	return info, err
}

// GetCase retrieves a case by name.
// Returns (case, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetCase(name string) (model.Case, bool, error) {
	var rows []storedRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCases).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rows)
	})
	if err != nil || !found {
		return model.Case{}, false, err
	}
	c := model.Case{Name: name, Records: make([]model.Record, len(rows))}
	for i, row := range rows {
		c.Records[i] = storedToRecord(row)
	}
	return c, true, nil
}

// GetCaseInfo retrieves the summary of a stored case.
func (s *Store) GetCaseInfo(name string) (model.CaseInfo, bool, error) {
	var info model.CaseInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCaseMeta).Get([]byte(name))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &info)
	})
	if err != nil {
		return info, false, err
	}
	return info, info.Name != "", nil
}

// ListCases returns the summaries of all stored cases, sorted by name.
func (s *Store) ListCases() ([]model.CaseInfo, error) {
	var infos []model.CaseInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCaseMeta).ForEach(func(k, v []byte) error {
			var info model.CaseInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			infos = append(infos, info)
			return nil
		})
	})
	return infos, err
}

// DeleteCase removes a case and its summary. Reports whether it existed.
func (s *Store) DeleteCase(name string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		existed = tx.Bucket(bucketCases).Get([]byte(name)) != nil
		if err := tx.Bucket(bucketCases).Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketCaseMeta).Delete([]byte(name))
	})
	return existed, err
}

// ─── Results ──────────────────────────────────────────────────────────────────

// SavedResult is a ratio result kept for later review.
type SavedResult struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// PutResult encodes r.Data and stores it under a new sequential ID.
func (s *Store) PutResult(r *model.Result) (SavedResult, error) {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return SavedResult{}, fmt.Errorf("encoding result: %w", err)
	}
	saved := SavedResult{
		Command:   r.Command,
		Kind:      r.Kind,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		saved.ID = fmt.Sprintf("r%05d", seq)
		v, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		return b.Put([]byte(saved.ID), v)
	})
	return saved, err
}

// GetResult retrieves a saved result by ID.
func (s *Store) GetResult(id string) (SavedResult, bool, error) {
	var r SavedResult
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketResults).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return r, false, err
	}
	return r, r.ID != "", nil
}

// ListResults returns all saved results in ID (creation) order.
func (s *Store) ListResults() ([]SavedResult, error) {
	var out []SavedResult
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).ForEach(func(k, v []byte) error {
			var r SavedResult
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, in
// AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// compactTxSize bounds the write transaction size used while compacting.
const compactTxSize = 64 << 10

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after. bbolt never shrinks a file on
// its own; freed pages are only reclaimed this way. The Store remains usable
// afterwards.
func (s *Store) Compact() (before, after int64, err error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, 0, err
	}
	before = fi.Size()

	tmpPath := s.path + ".compact"
	_ = os.Remove(tmpPath)
	dst, err := openDB(tmpPath)
	if err != nil {
		return before, 0, err
	}
	if err := bolt.Compact(dst, s.db, compactTxSize); err != nil {
		dst.Close()
		_ = os.Remove(tmpPath)
		return before, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return before, 0, err
	}
	if err := s.db.Close(); err != nil {
		return before, 0, err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		// Reopen the untouched original.
		s.db, _ = openDB(s.path)
		return before, 0, fmt.Errorf("replacing db: %w", err)
	}
	if s.db, err = openDB(s.path); err != nil {
		return before, 0, err
	}

	fi, err = os.Stat(s.path)
	if err != nil {
		return before, 0, err
	}
	return before, fi.Size(), nil
}
