package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UnixTime stores a time.Time as integer milliseconds so that window queries
// compare numerically instead of as formatted strings.
type UnixTime struct {
	time.Time
}

// NewUnixTime truncates t to millisecond precision in UTC.
func NewUnixTime(t time.Time) UnixTime {
	if t.IsZero() {
		return UnixTime{}
	}
	return UnixTime{Time: time.UnixMilli(t.UnixMilli()).UTC()}
}

// Value implements driver.Valuer.
func (t UnixTime) Value() (driver.Value, error) {
	if t.IsZero() {
		return int64(0), nil
	}
	return t.UnixMilli(), nil
}

// Scan implements sql.Scanner.
func (t *UnixTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case int64:
		if v == 0 {
			t.Time = time.Time{}
			return nil
		}
		t.Time = time.UnixMilli(v).UTC()
	default:
		return fmt.Errorf("unsupported type %T for UnixTime", src)
	}
	return nil
}

// Attachments is a JSON encoded list of media references.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	return scanJSON(src, a)
}

// IDList is a JSON encoded list of identifiers.
type IDList []string

// Value implements driver.Valuer.
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode id list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *IDList) Scan(src any) error {
	return scanJSON(src, l)
}

// Medias is a JSON encoded list of media.
type Medias []Media

// Value implements driver.Valuer.
func (m Medias) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode media: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Medias) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for JSON column", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
