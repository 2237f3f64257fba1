package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadQARecords parses QA records from r, dispatching on the file
// extension. Supported formats are .json (an array of flat objects) and
// .csv (a header row naming the fields).
func ReadQARecords(filename string, r io.Reader) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return readJSONRecords(r)
	case ".csv":
		return readCSVRecords(r)
	default:
		return nil, fmt.Errorf("ingestion: unsupported file format %q", filepath.Ext(filename))
	}
}

// readJSONRecords decodes a JSON array of objects. Scalar values are
// coerced to strings so the record shape matches the CSV reader.
func readJSONRecords(r io.Reader) ([]map[string]string, error) {
	var raw []map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ingestion: decode json records: %w", err)
	}

	records := make([]map[string]string, 0, len(raw))
	for _, obj := range raw {
		rec := make(map[string]string, len(obj))
		for k, v := range obj {
			rec[strings.ToLower(strings.TrimSpace(k))] = coerceString(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

// readCSVRecords decodes a CSV file whose first row names the fields.
func readCSVRecords(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []map[string]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: read csv row: %w", err)
		}
		rec := make(map[string]string, len(header))
		for i, field := range row {
			if i < len(header) {
				rec[header[i]] = field
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// coerceString renders a decoded JSON scalar as a string.
func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
