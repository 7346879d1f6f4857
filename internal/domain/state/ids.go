package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is the canonical identifier of a device entity.
//
// The Pearl API reports ids as JSON numbers on some endpoints and as strings on others;
// both decode to the same ID so that downstream comparisons never see mixed types.
type ID string

func (id ID) String() string { return string(id) }

// Number returns the id as an integer (layout activation needs the numeric form).
func (id ID) Number() (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not numeric", string(id))
	}
	return n, nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(s)
	return nil
}

// Scalar holds a display value that the device may encode as a string, number or boolean.
// null decodes to the empty string.
type Scalar string

func (s Scalar) String() string { return string(s) }

func (s *Scalar) UnmarshalJSON(b []byte) error {
	v, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("decode scalar: %w", err)
	}
	*s = Scalar(v)
	return nil
}

func scalarText(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return "", nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		return string(b), nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
