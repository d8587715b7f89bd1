// Package settings holds the rules for accepting synced settings: payload
// encoding and size, optimistic version checks, and snapshot retention.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

const (
	// DefaultMaxBytes bounds the encoded settings document.
	DefaultMaxBytes = 64 * 1024
	// DefaultRetainCount is how many live snapshots a user keeps.
	DefaultRetainCount = 20
)

// Serialized is an encoded settings document and its size in bytes.
type Serialized struct {
	JSON []byte
	Size int
}

// Serialize encodes value as compact JSON and enforces maxBytes on the
// UTF-8 encoding. A non-positive maxBytes selects DefaultMaxBytes.
func Serialize(value any, maxBytes int) (Serialized, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return Serialized{}, fmt.Errorf("%w: %v", common.ErrInvalidSettings, err)
	}

	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(out) > maxBytes {
		return Serialized{}, fmt.Errorf("%w: %d bytes exceeds %d", common.ErrSettingsTooLarge, len(out), maxBytes)
	}

	return Serialized{JSON: out, Size: len(out)}, nil
}

// SerializeObject is Serialize for a raw wire document that must be a JSON
// object the jsonb column can store: valid UTF-8 and no NUL characters in
// keys or strings.
func SerializeObject(raw json.RawMessage, maxBytes int) (Serialized, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Serialized{}, fmt.Errorf("%w: settings must be a JSON object", common.ErrInvalidSettings)
	}
	if err := checkStorable(trimmed); err != nil {
		return Serialized{}, err
	}
	return Serialize(json.RawMessage(trimmed), maxBytes)
}

func checkStorable(raw []byte) error {
	if !utf8.Valid(raw) {
		return fmt.Errorf("%w: settings are not valid UTF-8", common.ErrInvalidSettings)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidSettings, err)
		}
		if s, ok := tok.(string); ok && strings.ContainsRune(s, 0) {
			return fmt.Errorf("%w: settings contain a NUL character", common.ErrInvalidSettings)
		}
	}
}

// IsVersionAccepted reports whether incoming may follow latest. The first
// version is always accepted; afterwards versions must strictly increase.
func IsVersionAccepted(latest *int64, incoming int64) bool {
	if latest == nil {
		return true
	}
	return incoming > *latest
}

// SelectRetentionDeletes returns the ids past the first retain entries of a
// newest-first list, preserving order.
func SelectRetentionDeletes(newestFirst []models.SettingsSnapshot, retain int) []string {
	if retain < 0 {
		retain = 0
	}
	if len(newestFirst) <= retain {
		return nil
	}

	ids := make([]string, 0, len(newestFirst)-retain)
	for _, s := range newestFirst[retain:] {
		ids = append(ids, s.ID)
	}
	return ids
}
