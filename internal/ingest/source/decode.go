package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DecodeCSV reads header-keyed records. Short rows are padded, long rows
// truncated; blank lines are skipped.
func DecodeCSV(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(records)+1, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec := make(RawRecord, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				rec[key] = strings.TrimSpace(row[i])
			} else {
				rec[key] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeJSON accepts either a top-level array of objects or an object wrapping
// one (the first array-valued key wins, matching the shapes grant portals
// actually serve).
func DecodeJSON(r io.Reader) ([]RawRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json body: %w", err)
	}

	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return mapsToRecords(arr), nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode json records: %w", err)
	}
	for _, v := range obj {
		items, ok := v.([]any)
		if !ok {
			continue
		}
		var inner []map[string]any
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				inner = append(inner, m)
			}
		}
		if len(inner) > 0 {
			return mapsToRecords(inner), nil
		}
	}
	return nil, fmt.Errorf("json body contains no record array")
}

func mapsToRecords(maps []map[string]any) []RawRecord {
	records := make([]RawRecord, 0, len(maps))
	for _, m := range maps {
		rec := make(RawRecord, len(m))
		for k, v := range m {
			rec[k] = stringify(v)
		}
		records = append(records, rec)
	}
	return records
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
