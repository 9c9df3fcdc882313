package cgisession

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// encodeSessions writes the mapping as a single JSON object into a pooled
// buffer. The caller must release it with PutBuffer.
func encodeSessions(sessions Sessions) (*bytes.Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if sessions == nil {
		sessions = Sessions{}
	}
	if err := json.NewEncoder(buf).Encode(sessions); err != nil {
		PutBuffer(buf)
		return nil, fmt.Errorf("failed to encode sessions: %w", err)
	}
	return buf, nil
}

// decodeSessions parses a JSON object of token to values. Empty input is an
// empty mapping; anything else that is not a single JSON object is
// ErrCorruptStore.
func decodeSessions(data []byte) (Sessions, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Sessions{}, nil
	}

	reader := readerPool.Get().(*bytes.Reader)
	reader.Reset(data)
	defer readerPool.Put(reader)

	dec := json.NewDecoder(reader)
	dec.UseNumber()

	var raw map[string]map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptStore, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after sessions object", ErrCorruptStore)
	}

	out := make(Sessions, len(raw))
	for id, vals := range raw {
		v := make(Values, len(vals))
		for k, x := range vals {
			if n, ok := x.(json.Number); ok {
				v[k] = normalizeNumber(n)
				continue
			}
			v[k] = x
		}
		out[id] = v
	}
	return out, nil
}

func encodeValues(v Values) ([]byte, error) {
	if v == nil {
		v = Values{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return b, nil
}

func decodeValues(data []byte) (Values, error) {
	var raw map[string]any
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: failed to decode session data: %w", ErrCorruptStore, err)
		}
	}
	v := make(Values, len(raw))
	for k, x := range raw {
		if n, ok := x.(json.Number); ok {
			v[k] = normalizeNumber(n)
			continue
		}
		v[k] = x
	}
	return v, nil
}
