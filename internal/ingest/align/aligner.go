package align

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/openjordi/openjordi-backend/internal/ingest/ontology"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
)

// AlignedField is one candidate value for a canonical field, produced by the
// field-alignment collaborator. Confidence below the pipeline's floor means
// the value is dropped with a warning, never silently accepted.
type AlignedField struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	RawKey     string  `json:"raw_key"`
	Confidence float64 `json:"confidence"`
}

// Aligner maps unmapped raw columns of one record onto the canonical schema.
// Implementations must be safe for concurrent use; the normalize stage fans
// out across records.
type Aligner interface {
	Align(ctx context.Context, sourceID string, rec source.RawRecord, schema []ontology.Field) ([]AlignedField, error)
}

// ColumnMapping is a resolved raw-column -> canonical-field assignment with
// the aligner's confidence in it.
type ColumnMapping struct {
	Field      string  `json:"field"`
	Confidence float64 `json:"confidence"`
}

// ColumnsHash keys the mapping cache: identical column sets hash identically
// regardless of column order, so re-ingesting an unchanged source never
// re-invokes the aligner.
func ColumnsHash(rec source.RawRecord) string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	sum := sha256.Sum256([]byte(strings.Join(cols, ",")))
	return hex.EncodeToString(sum[:])
}

// Apply turns a column mapping into aligned fields for one record.
func Apply(rec source.RawRecord, mapping map[string]ColumnMapping) []AlignedField {
	out := make([]AlignedField, 0, len(mapping))
	for col, m := range mapping {
		if m.Field == "" || m.Field == "null" {
			continue
		}
		val, ok := rec[col]
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		out = append(out, AlignedField{
			Field:      m.Field,
			Value:      strings.TrimSpace(val),
			RawKey:     col,
			Confidence: m.Confidence,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
