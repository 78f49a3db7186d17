// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// CSVCodec returns the fallback tabular codec. CSV is typeless on the way
// back: Decode returns every value as a string.
func CSVCodec() TabularCodec { return csvCodec{} }

type csvCodec struct{}

func (csvCodec) Format() string      { return "csv" }
func (csvCodec) Ext() string         { return "csv" }
func (csvCodec) ContentType() string { return "text/csv; charset=utf-8" }

func (csvCodec) Encode(records []map[string]interface{}, schema Schema) ([]byte, error) {
	columns := schema.Columns()

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(columns); err != nil {
		return nil, Error.Wrap(err)
	}

	row := make([]string, len(columns))
	for i, record := range records {
		for j, column := range columns {
			formatted, err := formatCSVValue(record[column], schema[column])
			if err != nil {
				return nil, Error.New("record %d, column %q: %w", i, column, err)
			}
			row[j] = formatted
		}
		if err := writer.Write(row); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, Error.Wrap(err)
	}
	return buf.Bytes(), nil
}

func (csvCodec) Decode(data []byte, columns []string) ([]map[string]interface{}, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]map[string]interface{}, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]interface{}, len(header))
		for i, column := range header {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, projectColumns(record, columns))
	}
	return records, nil
}

func formatCSVValue(value interface{}, fieldType FieldType) (string, error) {
	if value == nil {
		return "", nil
	}
	switch fieldType {
	case FieldInt64:
		switch v := value.(type) {
		case int:
			return strconv.Itoa(v), nil
		case int32:
			return strconv.FormatInt(int64(v), 10), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatInt(int64(v), 10), nil
		}
	case FieldFloat64:
		switch v := value.(type) {
		case float32:
			return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		}
	case FieldBool:
		if v, ok := value.(bool); ok {
			return strconv.FormatBool(v), nil
		}
	case FieldTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano), nil
		case string:
			return v, nil
		}
	default:
		return fmt.Sprint(value), nil
	}
	return "", Error.New("value %T does not fit column type", value)
}
