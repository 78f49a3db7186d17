// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest

import (
	"sort"
	"time"
)

// FieldType is the closed set of column types a tabular schema can carry.
type FieldType int

const (
	// FieldString is a UTF-8 string column.
	FieldString FieldType = iota
	// FieldInt64 is a 64-bit integer column.
	FieldInt64
	// FieldFloat64 is a double-precision column.
	FieldFloat64
	// FieldBool is a boolean column.
	FieldBool
	// FieldTimestamp is a microsecond-precision timestamp column.
	FieldTimestamp
)

// Schema maps column names to types. A nil schema is inferred from the
// records being written.
type Schema map[string]FieldType

// Columns returns the schema's column names in stable sorted order.
func (schema Schema) Columns() []string {
	columns := make([]string, 0, len(schema))
	for name := range schema {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// InferSchema derives a schema from the records themselves, using the first
// non-nil value seen per column. Columns that never carry a typed value
// default to string.
func InferSchema(records []map[string]interface{}) Schema {
	schema := Schema{}
	for _, record := range records {
		for name, value := range record {
			if _, seen := schema[name]; seen {
				continue
			}
			switch value.(type) {
			case nil:
				continue
			case int, int32, int64:
				schema[name] = FieldInt64
			case float32, float64:
				schema[name] = FieldFloat64
			case bool:
				schema[name] = FieldBool
			case time.Time:
				schema[name] = FieldTimestamp
			default:
				schema[name] = FieldString
			}
		}
	}
	// Columns seen only as nil still need a type.
	for _, record := range records {
		for name := range record {
			if _, seen := schema[name]; !seen {
				schema[name] = FieldString
			}
		}
	}
	return schema
}

// TabularCodec serializes record sets for partitioned manifests. Two
// implementations exist: the parquet codec and the CSV fallback. Which one
// a Manager writes with is decided once at construction; WriteTable reports
// the format actually used.
type TabularCodec interface {
	// Format is the codec's reported name, "parquet" or "csv".
	Format() string
	// Ext is the partition key extension, without a leading dot.
	Ext() string
	// ContentType is the MIME type written alongside the payload.
	ContentType() string
	// Encode serializes records under schema. A record value that cannot
	// be represented in its column's type fails the whole encode; no
	// partial partition is written.
	Encode(records []map[string]interface{}, schema Schema) ([]byte, error)
	// Decode parses a partition payload, optionally projecting columns.
	Decode(data []byte, columns []string) ([]map[string]interface{}, error)
}

func projectColumns(record map[string]interface{}, columns []string) map[string]interface{} {
	if len(columns) == 0 {
		return record
	}
	projected := make(map[string]interface{}, len(columns))
	for _, column := range columns {
		if value, ok := record[column]; ok {
			projected[column] = value
		}
	}
	return projected
}
