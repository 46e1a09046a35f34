package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var jsonNull = []byte("null")

// StringList decodes a JSON array of strings, a comma-separated string, or
// null. Entries are trimmed but kept positionally so parallel lists such as
// investors/investorSlugs stay aligned; use Clean before fan-out.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		parts := strings.Split(s, ",")
		out := make(StringList, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		*l = out
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StringList, len(raw))
	for i, v := range raw {
		switch t := v.(type) {
		case string:
			out[i] = strings.TrimSpace(t)
		case float64:
			out[i] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(t)
		}
	}
	*l = out
	return nil
}

// Clean returns the non-empty entries with duplicates removed, keeping
// first-seen order. It never returns nil.
func (l StringList) Clean() []string {
	out := make([]string, 0, len(l))
	seen := make(KeySet[string], len(l))
	for _, s := range l {
		s = strings.TrimSpace(s)
		if s == "" || !seen.Add(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// At returns the trimmed entry at i, or "" when out of range.
func (l StringList) At(i int) string {
	if i < 0 || i >= len(l) {
		return ""
	}
	return strings.TrimSpace(l[i])
}

// OptInt is an optional integer that tolerates numeric strings and ranges
// like "11-50" (lower bound).
type OptInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable input, and values
// that do not fit a Postgres INTEGER, leave the value unset.
func (o *OptInt) UnmarshalJSON(data []byte) error {
	*o = OptInt{}
	f, ok := parseNumber(data, false)
	if !ok || math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil
	}
	*o = OptInt{Value: int(f), Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.Itoa(o.Value)), nil
}

// DB returns the value for a nullable column.
func (o OptInt) DB() any {
	if !o.Valid {
		return nil
	}
	return o.Value
}

// OptFloat is an optional money amount. Strings may carry "$", "," and a
// "k" suffix meaning thousands.
type OptFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable input leaves the value unset.
func (o *OptFloat) UnmarshalJSON(data []byte) error {
	*o = OptFloat{}
	if f, ok := parseNumber(data, true); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		*o = OptFloat{Value: f, Valid: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.FormatFloat(o.Value, 'f', -1, 64)), nil
}

// DB returns the value for a nullable column.
func (o OptFloat) DB() any {
	if !o.Valid {
		return nil
	}
	return o.Value
}

func parseNumber(data []byte, money bool) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return 0, false
	}
	if data[0] != '"' {
		f, err := strconv.ParseFloat(string(data), 64)
		return f, err == nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if money {
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	}
	// Ranges keep their lower bound.
	if i := strings.Index(s, "-"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimSuffix(s, "+")

	mul := 1.0
	if money && strings.HasSuffix(s, "k") {
		mul = 1000
		s = strings.TrimSuffix(s, "k")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f * mul, true
}

// Bool decodes true/false, "true"/"yes"/"1", or a number. Anything else is false.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			*b = true
		default:
			*b = false
		}
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		*b = Bool(err == nil && f != 0)
	}
	return nil
}

// Timestamp accepts RFC3339, YYYY-MM-DD, or epoch seconds/milliseconds.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// epochMillisCutoff separates epoch seconds from milliseconds.
const epochMillisCutoff = 1e11

// UnmarshalJSON implements json.Unmarshaler. Unparseable input leaves the value unset.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}

	if data[0] != '"' {
		if f, err := strconv.ParseFloat(string(data), 64); err == nil && f > 0 {
			*t = Timestamp{Time: fromEpoch(f), Valid: true}
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{Time: ts.UTC(), Valid: true}
			return nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		*t = Timestamp{Time: fromEpoch(f), Valid: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return jsonNull, nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// DB returns the value for a nullable timestamptz column.
func (t Timestamp) DB() any {
	if !t.Valid {
		return nil
	}
	return t.Time
}

func fromEpoch(f float64) time.Time {
	if f >= epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}
