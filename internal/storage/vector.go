package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeVector renders a vector as the bracketed comma-joined literal
// "[v1,v2,...]" used wherever the backend expects a textual vector
// representation (the SQLite store, and pgvector's wire format).
func EncodeVector(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec) * 10)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// DecodeVector parses the bracketed literal back into a vector.
func DecodeVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: malformed vector literal", ErrInvalidInput)
	}

	body := s[1 : len(s)-1]
	if body == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad vector component %d: %v", ErrInvalidInput, i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
