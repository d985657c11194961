package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allS = `var searchData=
[
  ['ship',['Ship',['../class_ship.html',1,'Ship']]],
  ['stringmaker',['StringMaker',['../sm.html',1,'Catch']]]
];
`

const allB = `var searchData=
[
  ['board',['Board',['../class_board.html',1,'Board']]],
  ['stringmaker',['StringMaker',['../sm2.html',1,'Catch::Detail']]]
];
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func displayNames(records []symbolindex.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.DisplayName
	}
	return out
}

func TestFileSourceFormats(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	js := writeFile(t, dir, "all_s.js", allS)
	records, err := NewFile(js).Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ship", "StringMaker"}, displayNames(records))

	jsonPath := writeFile(t, dir, "records.json",
		`[{"display_name":"Board","targets":[{"scope":"Board","reference":"../b.html"}]}]`)
	records, err = NewFile(jsonPath).Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "../b.html", records[0].Targets[0].Reference)

	idx, err := Load(ctx, NewFile(js))
	require.NoError(t, err)
	name, err := snapshot.Write(dir, idx)
	require.NoError(t, err)
	records, err = NewFile(filepath.Join(dir, name)).Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = NewFile(writeFile(t, dir, "notes.txt", "hello")).Records(ctx)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDirSourceConcatenatesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all_s.js", allS)
	writeFile(t, dir, "all_b.js", allB)
	writeFile(t, dir, "functions_b.js", `var searchData=[['x',['x',['x.html',1,'']]]];`)

	src := NewDir(dir, "")
	files, err := src.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "all_b.js"), filepath.Join(dir, "all_s.js")}, files)

	idx, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	// all_b.js is read first, so its StringMaker target comes first.
	e, ok := idx.Get("stringmaker")
	require.True(t, ok)
	want := []symbolindex.Target{
		{Scope: "Catch::Detail", Reference: "../sm2.html"},
		{Scope: "Catch", Reference: "../sm.html"},
	}
	if diff := cmp.Diff(want, e.Targets); diff != "" {
		t.Errorf("merged targets mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"ship", "board", "stringmaker"}, keysOf(idx))
}

func keysOf(idx *symbolindex.Index) []string {
	var out []string
	for e := range idx.All() {
		out = append(out, e.Key)
	}
	return out
}

func TestDirSourceFailures(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(context.Background(), NewDir(dir, "all_*.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceFailed)

	writeFile(t, dir, "all_a.js", allS)
	writeFile(t, dir, "all_b.js", "var searchData=[['broken',")
	_, err = Load(context.Background(), NewDir(dir, "all_*.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLoadMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `[{"display_name":"","targets":[{"reference":"x"}]}]`)
	idx, err := Load(context.Background(), NewFile(path))
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, apperrors.ErrMalformedEntry)
}

func TestLoadMissingFileIsSourceFailure(t *testing.T) {
	_, err := Load(context.Background(), NewFile(filepath.Join(t.TempDir(), "missing.js")))
	assert.ErrorIs(t, err, apperrors.ErrSourceFailed)
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))
}

func TestSnapshotSourceUsesLatest(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	_, err := NewSnapshot(dir).Records(ctx)
	require.Error(t, err)

	idx, err := symbolindex.Build([]symbolindex.Record{
		{DisplayName: "Game", Targets: []symbolindex.Target{{Reference: "../g.html"}}},
	})
	require.NoError(t, err)
	_, err = snapshot.Write(dir, idx)
	require.NoError(t, err)

	loaded, err := Load(ctx, NewSnapshot(dir))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadCorruptSnapshotIsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	idx, err := symbolindex.Build([]symbolindex.Record{
		{DisplayName: "Game", Targets: []symbolindex.Target{{Reference: "../g.html"}}},
	})
	require.NoError(t, err)
	name, err := snapshot.Write(dir, idx)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-snapshot.FooterSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	for _, src := range []Source{NewSnapshot(dir), NewFile(path)} {
		loaded, err := Load(context.Background(), src)
		assert.Nil(t, loaded)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, src.Name())
		assert.NotErrorIs(t, err, apperrors.ErrSourceFailed, src.Name())
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err), src.Name())
	}
}

func TestGroupRows(t *testing.T) {
	rows := []targetRow{
		{ordinal: 0, displayName: "Ship", scope: "Ship", reference: "a"},
		{ordinal: 0, displayName: "Ship", scope: "Ship::Ship()", reference: "b"},
		{ordinal: 1, displayName: "Board", scope: "", reference: "c"},
		{ordinal: 2, displayName: "Ship", scope: "Other", reference: "d"},
	}
	got := groupRows(rows)
	want := []symbolindex.Record{
		{DisplayName: "Ship", Targets: []symbolindex.Target{{Scope: "Ship", Reference: "a"}, {Scope: "Ship::Ship()", Reference: "b"}}},
		{DisplayName: "Board", Targets: []symbolindex.Target{{Reference: "c"}}},
		{DisplayName: "Ship", Targets: []symbolindex.Target{{Scope: "Other", Reference: "d"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groupRows mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, groupRows(nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg      config.IndexConfig
		wantName string
	}{
		{config.IndexConfig{Source: config.SourceFile, Path: "/docs/all_s.js"}, "file:/docs/all_s.js"},
		{config.IndexConfig{Source: config.SourceDir, Path: "/docs", Glob: "all_*.js"}, "dir:/docs/all_*.js"},
		{config.IndexConfig{Source: config.SourceSnapshot, SnapshotDir: "/snap"}, "snapshot:/snap"},
	}
	for _, tt := range tests {
		src, err := New(tt.cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.wantName, src.Name())
		_, watchable := src.(Watchable)
		assert.True(t, watchable)
	}

	_, err := New(config.IndexConfig{Source: config.SourcePostgres}, nil)
	assert.Error(t, err)
	_, err = New(config.IndexConfig{Source: "s3"}, nil)
	assert.Error(t, err)
}

func TestPostgresSourceIsNotWatchable(t *testing.T) {
	var src Source = NewPostgres(nil)
	_, ok := src.(Watchable)
	assert.False(t, ok)
	assert.Equal(t, "postgres:symbol_targets", src.Name())
}
