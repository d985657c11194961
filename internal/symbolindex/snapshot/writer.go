// Package snapshot persists a built symbol index to a single checksummed
// file so a process can start without re-parsing its sources.
//
// Layout of a .symx file:
//
//	header  64 bytes  magic, version, entry count, target count,
//	                  created-at, body offset, body size
//	body    JSON array of records in rank order
//	footer  32 bytes  CRC-32 of the body, entry count, body offset, body size
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
)

const (
	MagicBytes    uint32 = 0x53594d58 // "SYMX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".symx"
)

// Header is the fixed-size header written at the start of every snapshot.
type Header struct {
	Magic       uint32
	Version     uint32
	EntryCount  uint32
	TargetCount uint32
	CreatedAt   int64
	BodyOffset  int64
	BodySize    int64
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.EntryCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.TargetCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.BodyOffset))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.BodySize))
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		EntryCount:  binary.LittleEndian.Uint32(buf[8:12]),
		TargetCount: binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(buf[16:24])),
		BodyOffset:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		BodySize:    int64(binary.LittleEndian.Uint64(buf[32:40])),
	}
}

// Write creates a new snapshot of idx in dir and returns its file name. The
// file is written under a .tmp name and renamed once synced, so readers
// never observe a partial snapshot.
func Write(dir string, idx *symbolindex.Index) (string, error) {
	if idx == nil || idx.Len() == 0 {
		return "", fmt.Errorf("cannot write empty snapshot")
	}
	now := time.Now()
	name := fmt.Sprintf("snap_%d%s", now.UnixNano(), Extension)
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	body, err := json.Marshal(idx.Records())
	if err != nil {
		return "", fmt.Errorf("marshaling records: %w", err)
	}
	header := Header{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		EntryCount:  uint32(idx.Len()),
		TargetCount: uint32(idx.TargetCount()),
		CreatedAt:   now.Unix(),
		BodyOffset:  int64(HeaderSize),
		BodySize:    int64(len(body)),
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(footer[4:8], header.EntryCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.BodyOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.BodySize))

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	if err := writeAll(f, header.encode(), body, footer); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}

func writeAll(f *os.File, parts ...[]byte) error {
	for _, p := range parts {
		if _, err := f.Write(p); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	return nil
}
