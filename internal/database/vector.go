package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/propcrm/realty-agent/internal/models"
)

// encodeVector renders a vector in pgvector text form; nil maps to NULL
func encodeVector(v models.Vector) any {
	if len(v) == 0 {
		return nil
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// decodeVector parses pgvector text form
func decodeVector(raw sql.NullString) (models.Vector, error) {
	if !raw.Valid {
		return nil, nil
	}
	s := strings.TrimSpace(raw.String)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make(models.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
