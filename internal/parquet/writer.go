// Package parquet writes exported geometries as zstd-compressed Parquet.
package parquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/osm"
)

// Geometry kinds stored in the geom_type column.
const (
	KindPoint      = "point"
	KindLineString = "linestring"
	KindPolygon    = "polygon"
)

// TagsToJSON converts OSM tags to a JSON object string
func TagsToJSON(tags osm.Tags) string {
	if len(tags) == 0 {
		return "{}"
	}
	b, err := json.Marshal(tags.Map())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Schema is the layout of files written by GeometryWriter.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "osm_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "osm_type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "srid", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// Row is one exported feature.
type Row struct {
	ID       osm.ObjectID
	GeomType string
	SRID     int
	Tags     osm.Tags
	WKB      []byte
}

// GeometryWriter writes geometry rows with WKB (binary) geometries.
// Rows are buffered and written as one record batch per batchSize rows.
type GeometryWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

// NewGeometryWriter creates path and prepares a writer for it.
func NewGeometryWriter(path string, batchSize int) (*GeometryWriter, error) {
	if batchSize < 1 {
		batchSize = 10000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(Schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &GeometryWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, Schema),
		batchSize: batchSize,
	}, nil
}

// Write buffers one row. The WKB bytes are copied.
func (w *GeometryWriter) Write(r Row) error {
	w.builder.Field(0).(*array.Int64Builder).Append(int64(r.ID.Ref()))
	w.builder.Field(1).(*array.StringBuilder).Append(string(r.ID.Type()))
	w.builder.Field(2).(*array.StringBuilder).Append(r.GeomType)
	w.builder.Field(3).(*array.Int32Builder).Append(int32(r.SRID))
	w.builder.Field(4).(*array.StringBuilder).Append(TagsToJSON(r.Tags))
	w.builder.Field(5).(*array.BinaryBuilder).Append(r.WKB)

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Rows returns the number of rows written so far.
func (w *GeometryWriter) Rows() int64 {
	return w.total
}

func (w *GeometryWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.count = 0
	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (w *GeometryWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	// the parquet writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
