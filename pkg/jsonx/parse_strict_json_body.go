package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	ErrEmptyBody    = errors.New("empty body")
	ErrTrailingJSON = errors.New("trailing data")
)

// maxBody caps request bodies read by ParseStrictJSONBody.
const maxBody = 1 << 20

// DecodeStrict decodes exactly one JSON value from b into dst.
//
// It fails on:
//   - empty input (ErrEmptyBody)
//   - malformed JSON or field-type mismatches (encoding/json errors)
//   - unknown object fields
//   - more than one top-level value (ErrTrailingJSON)
//
// Only the shape is checked; required fields and value ranges are the caller's business.
func DecodeStrict[T any](b []byte, dst *T) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrTrailingJSON
	}
	return nil
}

// ParseStrictJSONBody reads at most 1MB of the request body and decodes it with DecodeStrict.
// Any error maps to 400 Bad Request.
func ParseStrictJSONBody[T any](r *http.Request, dst *T) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	return DecodeStrict(body, dst)
}
