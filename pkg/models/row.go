package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one source row kept verbatim, column name -> value.
type Row map[string]any

// NormalizeValue converts driver values into JSON friendly values.
// Byte slices become strings and dates lose their zero time part.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// String returns the column as a string, "" when absent or NULL.
func (r Row) String(col string) string {
	return ValueString(r[col])
}

// ValueString formats a scanned column value; nil becomes "".
func ValueString(v any) string {
	switch x := NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// OptString returns nil for absent, NULL or empty columns.
func (r Row) OptString(col string) *string {
	s := r.String(col)
	if s == "" {
		return nil
	}
	return &s
}

// Bool reads SQLite style booleans: 0/1 integers, bools and "true"/"false" text.
func (r Row) Bool(col string) bool {
	switch x := r[col].(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "t", "yes":
			return true
		}
	}
	return false
}

// Clone returns a shallow copy; nil stays nil.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
