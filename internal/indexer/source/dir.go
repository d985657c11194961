package source

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"golang.org/x/sync/errgroup"
)

// DirSource reads every file in a directory matching a glob, typically the
// per-letter all_*.js tables a documentation generator writes. Files are
// parsed concurrently and concatenated in file-name order.
type DirSource struct {
	dir  string
	glob string
}

func NewDir(dir, glob string) *DirSource {
	if glob == "" {
		glob = "all_*.js"
	}
	return &DirSource{dir: dir, glob: glob}
}

func (s *DirSource) Name() string      { return "dir:" + filepath.Join(s.dir, s.glob) }
func (s *DirSource) WatchPath() string { return s.dir }

// Files returns the matching file paths in the order their records are
// concatenated.
func (s *DirSource) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, s.glob))
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", s.glob, err)
	}
	slices.Sort(files)
	return files, nil
}

func (s *DirSource) Records(ctx context.Context) ([]symbolindex.Record, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %s in %s", s.glob, s.dir)
	}

	parts := make([][]symbolindex.Record, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records, err := readFile(path)
			if err != nil {
				return err
			}
			parts[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}
