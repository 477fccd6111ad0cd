// Package cache persists fetched survey responses as one file per response id.
// The existence of `<dir>/<id>.json` is the only signal that a response has
// been fetched, so files are only ever put in place by an atomic rename.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"surveysync/internal/components/telemetry"
	"time"
)

const (
	report_store_write  = "store.write"
	report_store_delete = "store.delete"
	report_store_sweep  = "store.sweep"
)

// temporary files are named `.partial-<id>.<random>.tmp`, '.' is not a valid
// id character so the temporaries of one id never match the glob of another
const (
	entryExt   = ".json"
	tempPrefix = ".partial-"
	tempSep    = "."
	tempSuffix = ".tmp"
)

var ErrInvalidId = errors.New("invalid response id")

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidId reports whether `id` can be mapped to a cache file, that is it is
// non-empty and only contains ascii letters, digits, '-' and '_'.
func ValidId(id string) bool {
	return idRegex.MatchString(id)
}

// Entry describes a single cached response.
type Entry struct {
	Id      string
	Size    int64
	ModTime time.Time
}

// Store is a directory of cached responses.
type Store struct {
	dir string
	tel telemetry.API
}

// NewStore creates the cache directory if needed and removes temporary files
// left behind by interrupted writes.
func NewStore(dir string, tel telemetry.API) (Store, error) {
	tel = telemetry.NewScopedAPI("cache", tel)

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return Store{}, fmt.Errorf("create cache dir: %w", err)
	}
	s := Store{dir: dir, tel: tel}
	s.sweep()
	return s, nil
}

func (s Store) Dir() string {
	return s.dir
}

func (s Store) path(id string) (string, error) {
	if !ValidId(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidId, id)
	}
	return filepath.Join(s.dir, id+entryExt), nil
}

func (s Store) sweep() {
	matches, err := filepath.Glob(filepath.Join(s.dir, tempPrefix+"*"+tempSuffix))
	if err != nil {
		s.tel.ReportWarning(report_store_sweep, err)
		return
	}
	for _, m := range matches {
		err := os.Remove(m)
		if err != nil && !os.IsNotExist(err) {
			s.tel.ReportWarning(report_store_sweep, fmt.Errorf("remove %s: %w", m, err))
			continue
		}
		s.tel.ReportDebug("removed stale partial file", m)
	}
}

// Exists reports whether a response has been cached for `id`.
func (s Store) Exists(id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

// Write stores `payload` as the cached response for `id`. The payload is
// written to a temporary file first and renamed into place.
func (s Store) Write(id string, payload []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+id+tempSep+"*"+tempSuffix)
	if err != nil {
		s.tel.ReportBroken(report_store_write, fmt.Errorf("create temp: %w", err), id)
		return err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	_, err = tmp.Write(payload)
	if err != nil {
		cleanup()
		s.tel.ReportBroken(report_store_write, fmt.Errorf("write temp: %w", err), id)
		return err
	}
	err = tmp.Sync()
	if err != nil {
		cleanup()
		s.tel.ReportBroken(report_store_write, fmt.Errorf("sync temp: %w", err), id)
		return err
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		s.tel.ReportBroken(report_store_write, fmt.Errorf("close temp: %w", err), id)
		return err
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		os.Remove(tmp.Name())
		s.tel.ReportBroken(report_store_write, fmt.Errorf("rename: %w", err), id)
		return err
	}
	return nil
}

// Delete removes the cached response for `id` along with any partial
// writes of it. Deleting an id that is not cached is not an error.
func (s Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	partials, _ := filepath.Glob(filepath.Join(s.dir, tempPrefix+id+tempSep+"*"+tempSuffix))
	for _, p := range partials {
		os.Remove(p)
	}

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		s.tel.ReportBroken(report_store_delete, err, id)
		return err
	}
	return nil
}

// Entries lists every cached response sorted by id.
func (s Store) Entries() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		id := strings.TrimSuffix(name, entryExt)
		if !ValidId(id) {
			continue
		}
		info, err := f.Info()
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			Id:      id,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Id < out[j].Id
	})
	return out, nil
}
