package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseVector decodes a JSON vector field. The field may be an array of
// numbers or a string holding one, as text columns store it. Null, missing
// and non-numeric components are rejected with ErrMalformedVector.
func ParseVector(raw []byte) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedVector, err)
		}
		raw = bytes.TrimSpace([]byte(text))
	}

	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array, got %.32q", ErrMalformedVector, raw)
	}

	// Pointers distinguish null from 0.
	var values []*float32
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedVector, err)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		if v == nil {
			return nil, fmt.Errorf("%w: component %d is null", ErrMalformedVector, i)
		}
		vec[i] = *v
	}
	return vec, nil
}

// ParseID decodes a JSON id field. Null and missing ids are rejected with
// ErrMalformedID.
func ParseID(raw []byte) (ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing", ErrMalformedID)
	}
	var id *int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedID, err)
	}
	if id == nil {
		return 0, fmt.Errorf("%w: null", ErrMalformedID)
	}
	return ID(*id), nil
}
