// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest

import (
	"bytes"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ParquetCodec returns the columnar codec used when a columnar engine is
// wanted; every column is written optional so sparse records round-trip.
func ParquetCodec() TabularCodec { return parquetCodec{} }

type parquetCodec struct{}

func (parquetCodec) Format() string      { return "parquet" }
func (parquetCodec) Ext() string         { return "parquet" }
func (parquetCodec) ContentType() string { return "application/vnd.apache.parquet" }

func (parquetCodec) Encode(records []map[string]interface{}, schema Schema) ([]byte, error) {
	group := parquet.Group{}
	for name, fieldType := range schema {
		var node parquet.Node
		switch fieldType {
		case FieldInt64:
			node = parquet.Int(64)
		case FieldFloat64:
			node = parquet.Leaf(parquet.DoubleType)
		case FieldBool:
			node = parquet.Leaf(parquet.BooleanType)
		case FieldTimestamp:
			node = parquet.Timestamp(parquet.Microsecond)
		default:
			node = parquet.String()
		}
		group[name] = parquet.Optional(node)
	}
	parquetSchema := parquet.NewSchema("records", group)

	rows := make([]map[string]interface{}, 0, len(records))
	for i, record := range records {
		row := make(map[string]interface{}, len(record))
		for column, fieldType := range schema {
			coerced, err := coerceParquetValue(record[column], fieldType)
			if err != nil {
				return nil, Error.New("record %d, column %q: %w", i, column, err)
			}
			if coerced != nil {
				row[column] = coerced
			}
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	if err := parquet.Write[map[string]interface{}](&buf, rows, parquetSchema); err != nil {
		return nil, Error.Wrap(err)
	}
	return buf.Bytes(), nil
}

func (parquetCodec) Decode(data []byte, columns []string) ([]map[string]interface{}, error) {
	// parquet-go v0.23 cannot derive a schema from a map type; reading
	// into `any` makes it use the file's own schema and yields maps.
	rows, err := parquet.Read[any](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	records := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		record, ok := row.(map[string]interface{})
		if !ok {
			return nil, Error.New("unexpected row type %T", row)
		}
		records = append(records, projectColumns(record, columns))
	}
	return records, nil
}

func coerceParquetValue(value interface{}, fieldType FieldType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch fieldType {
	case FieldInt64:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		}
	case FieldFloat64:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case FieldBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case FieldTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, Error.New("timestamp %q: %w", v, err)
			}
			return parsed, nil
		}
	default:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	return nil, Error.New("value %T does not fit column type", value)
}
