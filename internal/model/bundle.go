package model

// BundleSchemaVersion identifies the current portable bundle format.
const BundleSchemaVersion = "0.3"

// ProvenanceMethodID names the digest construction. It changes whenever the
// canonical form changes, so consumers can tell digests apart.
const ProvenanceMethodID = "canonical-json/sha256.v1"

// Provenance is the portable identity of a run's content.
type Provenance struct {
	Digest   string `json:"digest"`
	MethodID string `json:"method_id"`
}

// Bundle is a self-contained serialized run: the only artifact needed to
// recreate the run in another store.
type Bundle struct {
	SchemaVersion string      `json:"schema_version"`
	Run           Run         `json:"run"`
	Events        []Event     `json:"events"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}
