// Package history persists watch progress and user preferences in a
// local bbolt database.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketProgress    = []byte("watch_progress")
	bucketPreferences = []byte("preferences")
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("history entry not found")

// filePrefix namespaces file-path-keyed entries inside the progress
// bucket, away from the site|slug|episode keys.
const filePrefix = "file|"

// watchedThreshold is the playback percentage above which an episode
// counts as watched; creditsWindow additionally counts playback that
// stopped within the final stretch, where viewers skip the credits.
const (
	watchedThreshold = 95.0
	creditsWindow    = 120.0
)

// DefaultWriteInterval throttles progress upserts per key. Clients
// poll playback position far more often than it is worth persisting.
const DefaultWriteInterval = 5 * time.Second

// Entry records playback position for one file, episode or movie.
// Entries are keyed either by the absolute local file path (File set)
// or by the site/slug episode key.
type Entry struct {
	File       string    `json:"file,omitempty"`
	Site       string    `json:"site,omitempty"`
	Slug       string    `json:"slug,omitempty"`
	Title      string    `json:"title,omitempty"`
	Season     int       `json:"season"`
	Episode    int       `json:"episode"`
	Movie      int       `json:"movie,omitempty"`
	Position   float64   `json:"current_time"`
	Duration   float64   `json:"duration"`
	Percentage float64   `json:"percentage"`
	UpdatedAt  time.Time `json:"last_watched"`
}

// Watched reports whether playback finished for practical purposes:
// past the percentage threshold, or stopped inside the credits window.
func (e Entry) Watched() bool {
	if e.Percentage > watchedThreshold {
		return true
	}
	return e.Duration > 0 && e.Duration-e.Position < creditsWindow
}

// Key is the per-series episode key, "s1e3" or "movie-2".
func (e *Entry) Key() string {
	if e.Movie > 0 {
		return fmt.Sprintf("movie-%d", e.Movie)
	}
	return fmt.Sprintf("s%de%d", e.Season, e.Episode)
}

func (e *Entry) storageKey() []byte {
	if e.File != "" {
		return []byte(filePrefix + e.File)
	}
	return []byte(fmt.Sprintf("%s|%s|%s", e.Site, e.Slug, e.Key()))
}

// Store is the bbolt-backed history database.
type Store struct {
	db *bolt.DB

	writeInterval time.Duration

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithWriteInterval overrides the per-key progress write throttle.
// Zero disables throttling.
func WithWriteInterval(d time.Duration) Option {
	return func(s *Store) { s.writeInterval = d }
}

// Open creates or opens the database at path, creating parent
// directories as needed.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketProgress, bucketPreferences} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	s := &Store{
		db:            db,
		writeInterval: DefaultWriteInterval,
		lastWrite:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetProgress upserts one playback record. A zero duration entry is
// stored as-is; percentage is derived when the caller left it unset.
func (s *Store) SetProgress(e Entry) error {
	if e.Percentage == 0 && e.Duration > 0 {
		e.Percentage = e.Position / e.Duration * 100
	}
	e.UpdatedAt = time.Now()

	// Throttle repeat writes per key. Entries past the watched
	// threshold always land so a finished playback is never dropped.
	key := string(e.storageKey())
	s.mu.Lock()
	if s.writeInterval > 0 && time.Since(s.lastWrite[key]) < s.writeInterval && !e.Watched() {
		s.mu.Unlock()
		return nil
	}
	s.lastWrite[key] = e.UpdatedAt
	s.mu.Unlock()

	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Put(e.storageKey(), data)
	})
}

// SeriesProgress returns all recorded entries for one series, keyed by
// episode key.
func (s *Store) SeriesProgress(site, slug string) (map[string]Entry, error) {
	prefix := []byte(fmt.Sprintf("%s|%s|", site, slug))
	out := make(map[string]Entry)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProgress).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out[e.Key()] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recent returns up to limit entries ordered newest first, for the
// continue-watching row.
func (s *Store) Recent(limit int) ([]Entry, error) {
	var all []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			all = append(all, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, k int) bool { return all[i].UpdatedAt.After(all[k].UpdatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// FileProgress returns all file-path-keyed entries, keyed by path.
func (s *Store) FileProgress() (map[string]Entry, error) {
	prefix := []byte(filePrefix)
	out := make(map[string]Entry)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProgress).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out[e.File] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteProgress removes one episode-keyed entry. Missing entries are
// not an error.
func (s *Store) DeleteProgress(site, slug, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Delete([]byte(fmt.Sprintf("%s|%s|%s", site, slug, key)))
	})
}

// DeleteFileProgress removes one file-path-keyed entry.
func (s *Store) DeleteFileProgress(file string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Delete([]byte(filePrefix + file))
	})
}

// SetPreference stores one preference value.
func (s *Store) SetPreference(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).Put([]byte(key), []byte(value))
	})
}

// Preference reads one preference value.
func (s *Store) Preference(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPreferences).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		value = string(v)
		return nil
	})
	return value, err
}

// Preferences returns every stored preference.
func (s *Store) Preferences() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
