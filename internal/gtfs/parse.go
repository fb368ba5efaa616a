package gtfs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
)

var errNotFinite = errors.New("value is not a finite number")

// parseFloatField parses a finite decimal. NaN and infinities are rejected.
func parseFloatField(table feed.TableName, row int, rec feed.Record, field string) (float64, error) {
	raw := rec[field]
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errNotFinite
	}
	if err != nil {
		return 0, &DataFormatError{Table: string(table), Row: row, Field: field, Value: raw, Err: err}
	}
	return v, nil
}

func parseIntField(table feed.TableName, row int, rec feed.Record, field string) (int, error) {
	raw := rec[field]
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &DataFormatError{Table: string(table), Row: row, Field: field, Value: raw, Err: err}
	}
	return v, nil
}

// parseOptionalFloatField returns nil for an empty or absent value.
func parseOptionalFloatField(table feed.TableName, row int, rec feed.Record, field string) (*float64, error) {
	if rec[field] == "" {
		return nil, nil
	}
	v, err := parseFloatField(table, row, rec, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseTime converts HH:MM:SS into seconds since midnight. Hours may exceed
// 23 for trips running past midnight. An empty string is 0.
func ParseTime(value string) (int, error) {
	if value == "" {
		return 0, nil
	}

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS")
	}

	var fields [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("negative time component")
		}
		fields[i] = n
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

func parseTimeField(table feed.TableName, row int, rec feed.Record, field string) (int, error) {
	raw := rec[field]
	v, err := ParseTime(raw)
	if err != nil {
		return 0, &DataFormatError{Table: string(table), Row: row, Field: field, Value: raw, Err: err}
	}
	return v, nil
}
