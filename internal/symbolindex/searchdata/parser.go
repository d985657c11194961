// Package searchdata reads the search tables that documentation generators
// emit as JavaScript, e.g.
//
//	var searchData=
//	[
//	  ['ship_2eh',['Ship.h',['../_ship_8h.html',1,'']]],
//	  ...
//	];
//
// Each row holds an escaped key followed by one or more symbol groups. A
// group is a display name followed by (reference, flag, scope) triples.
package searchdata

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
)

// Parse reads one search-data file and returns its records in file order.
// Display names and scopes are HTML-unescaped; references are kept as is.
// The input may also be a bare array literal without the assignment.
func Parse(r io.Reader) ([]symbolindex.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading search data: %w", err)
	}
	literal, err := arrayLiteral(data)
	if err != nil {
		return nil, err
	}
	doc, err := toJSON(literal)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(doc, &rows); err != nil {
		return nil, invalid("decoding rows: %v", err)
	}

	logger := slog.Default().With("component", "searchdata")
	records := make([]symbolindex.Record, 0, len(rows))
	for i, raw := range rows {
		key, recs, err := decodeRow(raw)
		if err != nil {
			return nil, invalid("row %d: %v", i, err)
		}
		for _, rec := range recs {
			if decoded := DecodeKey(key); decoded != symbolindex.Normalize(rec.DisplayName) {
				logger.Debug("row key differs from display name",
					"row", i,
					"key", decoded,
					"display_name", rec.DisplayName,
				)
			}
		}
		records = append(records, recs...)
	}
	return records, nil
}

// DecodeKey reverses the _XX hex escaping generators apply to row keys, so
// "stringmaker_3c_20bool_20_3e" becomes "stringmaker< bool >". An underscore
// not followed by two hex digits is kept.
func DecodeKey(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '_' && i+3 <= len(key) {
			if v, err := hex.DecodeString(key[i+1 : i+3]); err == nil {
				b.WriteByte(v[0])
				i += 2
				continue
			}
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func invalid(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "search data: "+format, args...)
}

// arrayLiteral returns the outermost array of a `var x = [...];` statement
// or of a bare array literal. Only an '=' ahead of the first '[' starts the
// literal; one inside a string such as "operator=" does not.
func arrayLiteral(data []byte) ([]byte, error) {
	body := data
	if eq := bytes.IndexByte(data, '='); eq >= 0 {
		if open := bytes.IndexByte(data, '['); open < 0 || eq < open {
			body = data[eq+1:]
		}
	}
	start := bytes.IndexByte(body, '[')
	end := bytes.LastIndexByte(body, ']')
	if start < 0 || end < start {
		return nil, invalid("no array literal found")
	}
	if rest := bytes.TrimSpace(body[end+1:]); len(rest) > 0 && !bytes.Equal(rest, []byte(";")) {
		return nil, invalid("unexpected trailing content %q", truncate(rest, 32))
	}
	return body[start : end+1], nil
}

// toJSON rewrites single-quoted string literals as JSON strings. Everything
// outside string literals is copied unchanged.
func toJSON(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)+len(src)/8)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '\'' && c != '"' {
			out = append(out, c)
			continue
		}
		quote := c
		out = append(out, '"')
		closed := false
		for i++; i < len(src); i++ {
			c = src[i]
			if c == quote {
				closed = true
				break
			}
			switch {
			case c == '\\' && i+1 < len(src):
				i++
				next := src[i]
				if next == '\'' {
					out = append(out, '\'')
				} else {
					out = append(out, '\\', next)
				}
			case c == '"':
				out = append(out, '\\', '"')
			default:
				out = append(out, c)
			}
		}
		if !closed {
			return nil, invalid("unterminated string literal")
		}
		out = append(out, '"')
	}
	return out, nil
}

func decodeRow(raw json.RawMessage) (string, []symbolindex.Record, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return "", nil, fmt.Errorf("row is not an array: %w", err)
	}
	if len(row) < 2 {
		return "", nil, fmt.Errorf("expected a key and at least one symbol, got %d elements", len(row))
	}
	var key string
	if err := json.Unmarshal(row[0], &key); err != nil {
		return "", nil, fmt.Errorf("key: %w", err)
	}

	records := make([]symbolindex.Record, 0, len(row)-1)
	for _, g := range row[1:] {
		rec, err := decodeGroup(g)
		if err != nil {
			return "", nil, fmt.Errorf("key %q: %w", key, err)
		}
		records = append(records, rec)
	}
	return key, records, nil
}

func decodeGroup(raw json.RawMessage) (symbolindex.Record, error) {
	var group []json.RawMessage
	if err := json.Unmarshal(raw, &group); err != nil {
		return symbolindex.Record{}, fmt.Errorf("symbol is not an array: %w", err)
	}
	if len(group) < 2 {
		return symbolindex.Record{}, fmt.Errorf("symbol has no targets")
	}
	var name string
	if err := json.Unmarshal(group[0], &name); err != nil {
		return symbolindex.Record{}, fmt.Errorf("display name: %w", err)
	}

	targets := make([]symbolindex.Target, 0, len(group)-1)
	for j, t := range group[1:] {
		var triple []json.RawMessage
		if err := json.Unmarshal(t, &triple); err != nil {
			return symbolindex.Record{}, fmt.Errorf("target %d is not an array: %w", j, err)
		}
		if len(triple) < 2 || len(triple) > 3 {
			return symbolindex.Record{}, fmt.Errorf("target %d has %d fields, want 2 or 3", j, len(triple))
		}
		var target symbolindex.Target
		if err := json.Unmarshal(triple[0], &target.Reference); err != nil {
			return symbolindex.Record{}, fmt.Errorf("target %d reference: %w", j, err)
		}
		if len(triple) == 3 {
			if err := json.Unmarshal(triple[2], &target.Scope); err != nil {
				return symbolindex.Record{}, fmt.Errorf("target %d scope: %w", j, err)
			}
			target.Scope = html.UnescapeString(target.Scope)
		}
		targets = append(targets, target)
	}
	return symbolindex.Record{
		DisplayName: html.UnescapeString(name),
		Targets:     targets,
	}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
