package ingest

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type parquetEmployee struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Score  float64 `parquet:"score"`
	Active bool    `parquet:"active"`
}

func writeParquet(t *testing.T, rows []parquetEmployee) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEmployee](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func TestParseParquetRoundTrip(t *testing.T) {
	data := writeParquet(t, []parquetEmployee{
		{ID: 1, Name: "Ana", Score: 9.5, Active: true},
		{ID: 2, Name: "Luis", Score: 8, Active: false},
	})

	frame, err := ParseParquet(data)
	if err != nil {
		t.Fatalf("ParseParquet() error = %v", err)
	}
	want := []string{"id", "name", "score", "active"}
	if !reflect.DeepEqual(frame.Columns, want) {
		t.Fatalf("columns = %v, want %v", frame.Columns, want)
	}
	if len(frame.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(frame.Rows))
	}
	if frame.Rows[0][0] != int64(1) || frame.Rows[0][1] != "Ana" || frame.Rows[0][2] != 9.5 {
		t.Fatalf("first row = %v", frame.Rows[0])
	}
	// Booleans come back as 0/1 so column inference treats them as INTEGER.
	if frame.Rows[0][3] != int64(1) || frame.Rows[1][3] != int64(0) {
		t.Fatalf("active cells = %v / %v", frame.Rows[0][3], frame.Rows[1][3])
	}
}

func TestParseParquetCorruptInput(t *testing.T) {
	if _, err := ParseParquet([]byte("PAR1 this is not a parquet file")); err == nil {
		t.Fatal("expected error for corrupt input")
	} else if !strings.Contains(err.Error(), "open parquet file") {
		t.Fatalf("error = %v", err)
	}
}

func TestParseDocumentRoutesParquetByMagic(t *testing.T) {
	data := writeParquet(t, []parquetEmployee{{ID: 7, Name: "Mia", Score: 6.5}})

	// Content type deliberately wrong; the magic bytes win.
	frame, err := parseDocument(data, "application/octet-stream")
	if err != nil {
		t.Fatalf("parseDocument() error = %v", err)
	}
	if len(frame.Rows) != 1 || frame.Rows[0][1] != "Mia" {
		t.Fatalf("rows = %v", frame.Rows)
	}
}

func TestLooksLikeParquet(t *testing.T) {
	if !looksLikeParquet([]byte("PAR1xxxx")) {
		t.Fatal("expected PAR1 prefix to be detected")
	}
	if looksLikeParquet([]byte(`{"a":1}`)) {
		t.Fatal("JSON should not look like parquet")
	}
}
