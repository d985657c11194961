package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
)

// ReadHeader returns the header of the snapshot at path after checking its
// magic and version.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("reading snapshot header: %w", err)
	}
	return checkHeader(decodeHeader(buf))
}

func checkHeader(h Header) (Header, error) {
	if h.Magic != MagicBytes {
		return Header{}, corrupt("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, corrupt("unsupported version %d", h.Version)
	}
	return h, nil
}

// corrupt reports a snapshot whose contents cannot be trusted. Such errors
// match ErrInvalidInput so a reload fails fast instead of retrying.
func corrupt(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid snapshot: "+format, args...)
}

// Read loads the records stored in the snapshot at path. A damaged file is
// reported as an error matching ErrInvalidInput and never panics.
func Read(path string) ([]symbolindex.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, corrupt("%d bytes is too short", len(data))
	}
	header, err := checkHeader(decodeHeader(data[:HeaderSize]))
	if err != nil {
		return nil, err
	}
	limit := int64(len(data) - FooterSize)
	if header.BodyOffset < int64(HeaderSize) || header.BodyOffset > limit ||
		header.BodySize < 0 || header.BodySize > limit-header.BodyOffset {
		return nil, corrupt("body offset %d size %d out of range for %d bytes",
			header.BodyOffset, header.BodySize, len(data))
	}
	body := data[header.BodyOffset : header.BodyOffset+header.BodySize]
	footer := data[len(data)-FooterSize:]
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(body); want != got {
		return nil, corrupt("checksum mismatch: stored %08x, computed %08x", want, got)
	}

	var records []symbolindex.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, corrupt("parsing body: %v", err)
	}
	if uint32(len(records)) != header.EntryCount {
		return nil, corrupt("body holds %d records, header says %d", len(records), header.EntryCount)
	}
	return records, nil
}

// Latest returns the path of the newest snapshot in dir.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no snapshots in %s", dir)
	}
	// snap_<unixnano> names share a width until the year 2286
	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
