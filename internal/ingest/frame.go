package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/store"
)

// Frame is the intermediate tabular shape between a fetched document and a
// SQLite table: named columns and row-major values.
type Frame struct {
	Columns []string
	Rows    [][]any
}

func (f Frame) Empty() bool {
	return len(f.Columns) == 0 || len(f.Rows) == 0
}

// ParseJSON accepts the document shapes the loader supports: a list of
// objects, an object whose first list-valued key holds the records, an object
// nesting such a list one level deeper, or a single flat object. Nested
// objects flatten into dotted column names.
func ParseJSON(data []byte) (Frame, error) {
	var document any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return Frame{}, fmt.Errorf("decode JSON: %w", err)
	}

	records, err := recordsFromDocument(document)
	if err != nil {
		return Frame{}, err
	}

	frame := frameFromRecords(records)
	if frame.Empty() {
		return Frame{}, fmt.Errorf("no tabular data found in JSON")
	}
	return frame, nil
}

func recordsFromDocument(document any) ([]map[string]any, error) {
	switch typed := document.(type) {
	case []any:
		return recordList(typed)
	case map[string]any:
		// Find a key holding the actual records; map iteration order is
		// random, so take the lexicographically first candidate.
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			switch value := typed[key].(type) {
			case []any:
				return recordList(value)
			case map[string]any:
				subKeys := make([]string, 0, len(value))
				for subKey := range value {
					subKeys = append(subKeys, subKey)
				}
				sort.Strings(subKeys)
				for _, subKey := range subKeys {
					if list, ok := value[subKey].([]any); ok {
						return recordList(list)
					}
				}
				return []map[string]any{flatten("", value)}, nil
			}
		}
		return []map[string]any{flatten("", typed)}, nil
	default:
		return nil, fmt.Errorf("JSON data must be a list or an object")
	}
}

func recordList(list []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		object, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("JSON list items must be objects")
		}
		records = append(records, flatten("", object))
	}
	return records, nil
}

func flatten(prefix string, object map[string]any) map[string]any {
	flat := make(map[string]any, len(object))
	for key, value := range object {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for nestedKey, nestedValue := range flatten(name, nested) {
				flat[nestedKey] = nestedValue
			}
			continue
		}
		flat[name] = value
	}
	return flat
}

func frameFromRecords(records []map[string]any) Frame {
	columns := make([]string, 0)
	seen := make(map[string]bool)
	for _, record := range records {
		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		row := make([]any, len(columns))
		for i, column := range columns {
			row[i] = normalizeCell(record[column])
		}
		rows = append(rows, row)
	}
	return Frame{Columns: columns, Rows: rows}
}

// normalizeCell reduces parsed values to what SQLite can hold: numbers,
// booleans, text, NULL. Lists and leftover objects become their JSON text.
func normalizeCell(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case bool:
		// SQLite has no boolean type; store 0/1 the way the INTEGER
		// inference expects.
		if typed {
			return int64(1)
		}
		return int64(0)
	case string, int64, float64:
		return typed
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case float32:
		return float64(typed)
	case []any, map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

// ParseCSV sniffs the separator from the header line before decoding, since
// exported files frequently use semicolons or tabs while claiming text/csv.
func ParseCSV(data []byte) (Frame, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Frame{}, fmt.Errorf("no data found in CSV")
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffSeparator(text)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("decode CSV: %w", err)
	}
	if len(records) < 2 {
		return Frame{}, fmt.Errorf("no data rows found in CSV")
	}

	columns := records[0]
	rows := make([][]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]any, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = parseCSVCell(record[i])
			}
		}
		rows = append(rows, row)
	}
	return Frame{Columns: columns, Rows: rows}, nil
}

func sniffSeparator(text string) rune {
	header := text
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	best := ','
	bestCount := strings.Count(header, ",")
	for _, candidate := range []rune{';', '\t', '|'} {
		if count := strings.Count(header, string(candidate)); count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

func parseCSVCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return int64(1)
	case "false":
		return int64(0)
	}
	return trimmed
}

// InferColumns maps each column to a SQLite type: INTEGER for integral and
// boolean values, REAL when any value carries a fraction, TEXT otherwise.
func InferColumns(frame Frame) []store.ColumnDef {
	defs := make([]store.ColumnDef, len(frame.Columns))
	for i, name := range frame.Columns {
		defs[i] = store.ColumnDef{Name: name, Type: inferColumnType(frame.Rows, i)}
	}
	return defs
}

func inferColumnType(rows [][]any, index int) string {
	sawValue := false
	isInteger := true
	isNumeric := true
	for _, row := range rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		sawValue = true
		switch typed := row[index].(type) {
		case int64:
		case float64:
			if typed != math.Trunc(typed) {
				isInteger = false
			}
		default:
			isInteger = false
			isNumeric = false
		}
	}
	switch {
	case !sawValue:
		return "TEXT"
	case isInteger:
		return "INTEGER"
	case isNumeric:
		return "REAL"
	default:
		return "TEXT"
	}
}
