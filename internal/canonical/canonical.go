// Package canonical provides the canonical JSON encoding and content
// digests for runs. All functions are pure and deterministic.
//
// Canonical form: object keys sorted lexicographically at every level, no
// insignificant whitespace, number literals preserved as written. The same
// (run, events) pair yields the same digest on any platform; without this,
// digests are not portable across stores.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

// Marshal encodes v as canonical JSON. The value is round-tripped through a
// generic decode so that struct field order never leaks into the output and
// map keys come out sorted (encoding/json sorts map keys on encode). Numbers
// are decoded as json.Number to keep their literal form.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical: re-marshal: %w", err)
	}
	return out, nil
}

// MarshalPayload canonicalizes an event payload for persistence. A nil
// payload encodes as an empty object so stored text is never "null".
func MarshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return Marshal(payload)
}

// digestContent is the exact shape hashed for a run digest: the run object
// and its events in seq order, under sorted top-level keys.
type digestContent struct {
	Events []model.Event `json:"events"`
	Run    model.Run     `json:"run"`
}

// Digest computes the sha256-hex content digest over the canonical form of
// (run, events). Events must already be in ascending seq order.
func Digest(run model.Run, events []model.Event) (string, error) {
	if events == nil {
		events = []model.Event{}
	}
	data, err := Marshal(digestContent{Run: run, Events: events})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Provenance builds the provenance record for (run, events).
func Provenance(run model.Run, events []model.Event) (model.Provenance, error) {
	digest, err := Digest(run, events)
	if err != nil {
		return model.Provenance{}, err
	}
	return model.Provenance{
		Digest:   digest,
		MethodID: model.ProvenanceMethodID,
	}, nil
}
