package fhir

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ErrEmptyBundle is returned when a bundle has no entries to read.
var ErrEmptyBundle = errors.New("bundle has no entries")

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// DecodeBundle reads a Bundle and checks its resourceType.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected resourceType Bundle, got %q", b.ResourceType)
	}
	return &b, nil
}

// FirstResource decodes the first entry's resource into v.
func (b *Bundle) FirstResource(v any) error {
	if len(b.Entry) == 0 || len(b.Entry[0].Resource) == 0 {
		return ErrEmptyBundle
	}
	if err := json.Unmarshal(b.Entry[0].Resource, v); err != nil {
		return fmt.Errorf("decoding bundle entry: %w", err)
	}
	return nil
}
