package snapshot

import (
	"encoding/binary"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T) *symbolindex.Index {
	t.Helper()
	idx, err := symbolindex.Build([]symbolindex.Record{
		{DisplayName: "Ship", Targets: []symbolindex.Target{
			{Scope: "Ship", Reference: "../class_ship.html"},
			{Scope: "Ship::Ship()", Reference: "../class_ship.html#a1836"},
		}},
		{DisplayName: "shipName", Targets: []symbolindex.Target{{Scope: "Game::shipName()", Reference: "../class_game.html#aa652"}}},
		{DisplayName: "StringMaker< bool >", Targets: []symbolindex.Target{{Scope: "Catch", Reference: "../sm.html"}}},
		{DisplayName: "Ship.h", Targets: []symbolindex.Target{{Reference: "../_ship_8h.html"}}},
	})
	require.NoError(t, err)
	return idx
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	idx := testIndex(t)

	name, err := Write(dir, idx)
	require.NoError(t, err)
	assert.Equal(t, Extension, filepath.Ext(name))

	path := filepath.Join(dir, name)
	header, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), header.EntryCount)
	assert.Equal(t, uint32(5), header.TargetCount)
	assert.WithinDuration(t, time.Now(), time.Unix(header.CreatedAt, 0), time.Minute)

	records, err := Read(path)
	require.NoError(t, err)
	rebuilt, err := symbolindex.Build(records)
	require.NoError(t, err)
	if diff := cmp.Diff(slices.Collect(idx.All()), slices.Collect(rebuilt.All())); diff != "" {
		t.Errorf("snapshot round trip changed the index (-want +got):\n%s", diff)
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteRejectsEmpty(t *testing.T) {
	idx, err := symbolindex.Build(nil)
	require.NoError(t, err)
	_, err = Write(t.TempDir(), idx)
	assert.Error(t, err)
}

func TestReadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex(t))
	require.NoError(t, err)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("body byte flipped", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[HeaderSize+3] ^= 0x20
		p := filepath.Join(dir, "flipped"+Extension)
		require.NoError(t, os.WriteFile(p, bad, 0o644))
		_, err := Read(p)
		assert.ErrorContains(t, err, "checksum mismatch")
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[0] = 0
		p := filepath.Join(dir, "magic"+Extension)
		require.NoError(t, os.WriteFile(p, bad, 0o644))
		_, err := Read(p)
		assert.ErrorContains(t, err, "bad magic")
		_, err = ReadHeader(p)
		assert.ErrorContains(t, err, "bad magic")
	})

	t.Run("truncated", func(t *testing.T) {
		p := filepath.Join(dir, "short"+Extension)
		require.NoError(t, os.WriteFile(p, data[:HeaderSize+4], 0o644))
		_, err := Read(p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	bodyBounds := []struct {
		name   string
		offset int64
		size   uint64
	}{
		{"negative body size", int64(HeaderSize), 0xFFFFFFFFFFFFFFF0},
		{"body size overflows end", int64(HeaderSize), math.MaxInt64},
		{"body past footer", int64(HeaderSize), uint64(len(data))},
		{"offset inside header", 8, 16},
		{"offset past footer", int64(len(data)), 0},
	}
	for _, tt := range bodyBounds {
		t.Run(tt.name, func(t *testing.T) {
			bad := slices.Clone(data)
			binary.LittleEndian.PutUint64(bad[24:32], uint64(tt.offset))
			binary.LittleEndian.PutUint64(bad[32:40], tt.size)
			p := filepath.Join(dir, "bounds"+Extension)
			require.NoError(t, os.WriteFile(p, bad, 0o644))

			var records []symbolindex.Record
			require.NotPanics(t, func() { records, err = Read(p) })
			assert.Nil(t, records)
			assert.ErrorContains(t, err, "out of range")
		})
	}
}

func TestReadErrorsAreInvalidInput(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex(t))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	bad := slices.Clone(data)
	bad[HeaderSize+3] ^= 0x20
	p := filepath.Join(dir, "flipped"+Extension)
	require.NoError(t, os.WriteFile(p, bad, 0o644))

	_, err = Read(p)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = Read(filepath.Join(dir, "missing"+Extension))
	assert.NotErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	_, err := Latest(dir)
	assert.Error(t, err)

	idx := testIndex(t)
	first, err := Write(dir, idx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := Write(dir, idx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, second), latest)
}
