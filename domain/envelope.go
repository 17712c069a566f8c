package domain

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer shape shared by all federation activities. The
// object field stays raw: it may be a bare URI string or an embedded
// object, and only the handler for the concrete type knows which.
type Envelope struct {
	Context json.RawMessage `json:"@context,omitempty"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object,omitempty"`
}

// ObjectRef is the part of an embedded object we dispatch on.
type ObjectRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ParseEnvelope decodes the outer activity shape and validates the
// fields every activity must carry.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("activity missing id")
	}
	if env.Type == "" {
		return nil, fmt.Errorf("activity missing type")
	}
	if env.Actor == "" {
		return nil, fmt.Errorf("activity missing actor")
	}
	return &env, nil
}

// ActivityType maps the wire type onto the closed enum.
func (e *Envelope) ActivityType() ActivityType {
	return ParseActivityType(e.Type)
}

// ObjectURI extracts the object identifier whether the object is a bare
// URI string or an embedded object with an id field.
func (e *Envelope) ObjectURI() string {
	if len(e.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(e.Object, &uri); err == nil {
		return uri
	}
	var ref ObjectRef
	if err := json.Unmarshal(e.Object, &ref); err == nil {
		return ref.ID
	}
	return ""
}

// ObjectAsRef decodes an embedded object's id and type. Returns an
// error for bare string objects.
func (e *Envelope) ObjectAsRef() (*ObjectRef, error) {
	if len(e.Object) == 0 {
		return nil, fmt.Errorf("activity has no object")
	}
	var ref ObjectRef
	if err := json.Unmarshal(e.Object, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse object: %w", err)
	}
	return &ref, nil
}
