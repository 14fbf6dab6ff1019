// Package audit keeps a hash-chained trail of the engine's domain events.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// canonicalJSON produces deterministic JSON with sorted map keys so a hash
// can be recomputed from the same entry later.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// Entry is an immutable audit record of one domain event
type Entry struct {
	Sequence  int64     `json:"sequence"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	Actor        types.Principal `json:"actor,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`

	Changes       map[string]any `json:"changes,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// NewEntry builds the unchained entry for event. The timestamp is truncated
// to microseconds so the hash survives a round trip through TIMESTAMPTZ.
func NewEntry(event events.Event) *Entry {
	resourceType, _, _ := strings.Cut(event.Type, ".")

	entry := &Entry{
		EventID:       event.ID,
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		Actor:         event.Actor,
		Action:        event.Type,
		ResourceType:  resourceType,
		CorrelationID: event.CorrelationID,
	}
	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
		entry.ResourceID = resourceID(resourceType, data)
	}
	return entry
}

// chain links e after the entry with sequence prevSeq and hash prevHash
func (e *Entry) chain(prevSeq int64, prevHash string) {
	e.Sequence = prevSeq + 1
	e.PrevHash = prevHash
	e.Hash = e.calculateHash()
}

// resourceID picks the id of the resource an event is about
func resourceID(resourceType string, data map[string]any) string {
	for _, field := range []string{resourceType + "_id", "principal"} {
		if v, ok := data[field]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// calculateHash hashes every field except Hash itself
func (e *Entry) calculateHash() string {
	data := map[string]any{
		"sequence":      e.Sequence,
		"event_id":      e.EventID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor":         e.Actor,
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}
	if e.CorrelationID != "" {
		data["correlation_id"] = e.CorrelationID
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// Filter narrows a trail listing. Zero fields match everything.
type Filter struct {
	Actor        types.Principal
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
}

func (f Filter) matches(e *Entry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	return true
}

// VerifyResult reports the outcome of a chain verification
type VerifyResult struct {
	Valid    bool  `json:"valid"`
	Checked  int   `json:"checked"`
	BrokenAt int64 `json:"broken_at,omitempty"`
}

// verifier walks a chain in sequence order
type verifier struct {
	prev    string
	checked int
	broken  int64
}

// check consumes the next entry and reports whether the chain still holds
func (v *verifier) check(e *Entry) bool {
	v.checked++
	if e.PrevHash != v.prev || !e.VerifyHash() {
		v.broken = e.Sequence
		return false
	}
	v.prev = e.Hash
	return true
}

func (v *verifier) result() VerifyResult {
	return VerifyResult{Valid: v.broken == 0, Checked: v.checked, BrokenAt: v.broken}
}
