// pkg/model/document.go
package model

import (
	"encoding/json"
	"fmt"
)

// Stored document fields. Only these columns may be written by a sink.
const (
	FieldCommunityHealth = "community_health_data"
	FieldCancer          = "cancer_data"
)

// KnownFields lists every writable document field
var KnownFields = []string{FieldCommunityHealth, FieldCancer}

// IsKnownField reports whether a field name is writable
func IsKnownField(field string) bool {
	for _, f := range KnownFields {
		if f == field {
			return true
		}
	}
	return false
}

// Document is one encoded aggregate ready for a sink.
// Body is immutable once the document is created.
type Document struct {
	Key   PeriodKey
	Field string
	Body  json.RawMessage
}

// NewDocument encodes an aggregate into a Document
func NewDocument(key PeriodKey, field string, aggregate interface{}) (Document, error) {
	body, err := json.Marshal(aggregate)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode %s document for %s: %w", field, key, err)
	}
	return Document{Key: key, Field: field, Body: body}, nil
}

// StoredDocument is a document read back from a sink for verification
type StoredDocument struct {
	OrganisationCode string `db:"trust_code"`
	Period           string `db:"period"`
	Granularity      string `db:"data_type"`
	Body             []byte `db:"document"`
}
