package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// parquetMagic is the header every parquet file starts with.
var parquetMagic = []byte("PAR1")

func looksLikeParquet(data []byte) bool {
	return bytes.HasPrefix(data, parquetMagic)
}

// ParseParquet reads an arbitrary-schema parquet file into a frame, keeping
// the file's own column order. The schema is only known at runtime, so rows
// are decoded through the row API rather than a typed reader; nested leaves
// get dotted names, matching the JSON flattening convention.
func ParseParquet(data []byte) (Frame, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Frame{}, fmt.Errorf("open parquet file: %w", err)
	}

	leafPaths := file.Schema().Columns()
	columns := make([]string, len(leafPaths))
	for i, path := range leafPaths {
		columns[i] = strings.Join(path, ".")
	}

	rows := make([][]any, 0, file.NumRows())
	buffer := make([]parquet.Row, 64)
	for _, rowGroup := range file.RowGroups() {
		groupRows := rowGroup.Rows()
		for {
			n, readErr := groupRows.Read(buffer)
			for _, parquetRow := range buffer[:n] {
				row := make([]any, len(columns))
				for _, value := range parquetRow {
					if index := int(value.Column()); index >= 0 && index < len(row) {
						row[index] = cellFromParquetValue(value)
					}
				}
				rows = append(rows, row)
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				_ = groupRows.Close()
				return Frame{}, fmt.Errorf("read parquet rows: %w", readErr)
			}
		}
		if err := groupRows.Close(); err != nil {
			return Frame{}, fmt.Errorf("close parquet row reader: %w", err)
		}
	}

	if len(columns) == 0 || len(rows) == 0 {
		return Frame{}, fmt.Errorf("no tabular data found in parquet file")
	}
	return Frame{Columns: columns, Rows: rows}, nil
}

func cellFromParquetValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Boolean:
		if value.Boolean() {
			return int64(1)
		}
		return int64(0)
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(value.ByteArray())
	default:
		return value.String()
	}
}
