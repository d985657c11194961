// Package source loads symbol records from the places an index can come
// from: generated search-data files, a directory of them, snapshots, or the
// symbol_targets table in PostgreSQL.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex/searchdata"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/postgres"
)

// Source produces the ordered record list an index is built from.
type Source interface {
	// Name identifies the source in logs and events.
	Name() string
	Records(ctx context.Context) ([]symbolindex.Record, error)
}

// Watchable is a Source backed by the filesystem. WatchPath is the file or
// directory whose changes should trigger a reload.
type Watchable interface {
	Source
	WatchPath() string
}

// New returns the Source described by cfg. db and pgOpts are only used for
// the postgres source; db may be nil otherwise.
func New(cfg config.IndexConfig, db *postgres.Client, pgOpts ...PostgresOption) (Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return NewFile(cfg.Path), nil
	case config.SourceDir:
		return NewDir(cfg.Path, cfg.Glob), nil
	case config.SourceSnapshot:
		return NewSnapshot(cfg.SnapshotDir), nil
	case config.SourcePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres source requires a database client")
		}
		return NewPostgres(db.DB, pgOpts...), nil
	default:
		return nil, fmt.Errorf("unknown index source %q", cfg.Source)
	}
}

// Load reads every record from src and builds an index from them. Malformed
// or unparsable input is returned as is; any other failure is reported as
// ErrSourceFailed.
func Load(ctx context.Context, src Source) (*symbolindex.Index, error) {
	records, err := src.Records(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) || apperrors.Is(err, apperrors.ErrMalformedEntry) {
			return nil, fmt.Errorf("loading %s: %w", src.Name(), err)
		}
		return nil, apperrors.Newf(apperrors.ErrSourceFailed, http.StatusServiceUnavailable,
			"loading %s: %v", src.Name(), err)
	}
	idx, err := symbolindex.Build(records)
	if err != nil {
		return nil, fmt.Errorf("building index from %s: %w", src.Name(), err)
	}
	return idx, nil
}

// FileSource reads a single file. The format follows the extension: .js is
// generated search data, .json a record array, .symx a snapshot.
type FileSource struct {
	path string
}

func NewFile(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string      { return "file:" + s.path }
func (s *FileSource) WatchPath() string { return s.path }

func (s *FileSource) Records(ctx context.Context) ([]symbolindex.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readFile(s.path)
}

// SnapshotSource loads the newest snapshot in a directory.
type SnapshotSource struct {
	dir string
}

func NewSnapshot(dir string) *SnapshotSource {
	return &SnapshotSource{dir: dir}
}

func (s *SnapshotSource) Name() string      { return "snapshot:" + s.dir }
func (s *SnapshotSource) WatchPath() string { return s.dir }

func (s *SnapshotSource) Records(ctx context.Context) ([]symbolindex.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := snapshot.Latest(s.dir)
	if err != nil {
		return nil, err
	}
	return snapshot.Read(path)
}

func readFile(path string) ([]symbolindex.Record, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".js":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		records, err := searchdata.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return records, nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var records []symbolindex.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"%s: decoding records: %v", path, err)
		}
		return records, nil
	case snapshot.Extension:
		return snapshot.Read(path)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"%s: unsupported index file extension %q", path, ext)
	}
}
