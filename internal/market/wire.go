// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// LOOSE WIRE TYPES
// =============================================================================
// The marketplace API is inconsistent about scalar encodings: ids arrive as
// numbers or strings, flags as bools or 0/1, and timestamps in either RFC 3339
// or SQLite's "YYYY-MM-DD HH:MM:SS". These types absorb that at decode time so
// the domain types never see it.

var jsonNull = []byte("null")

// FlexString accepts a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexBool accepts true/false, 0/1 and their string forms. A missing field
// decodes to the zero value; use *FlexBool where absence matters.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch strings.Trim(string(b), `"`) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		// Any other number counts as set.
		n, err := strconv.ParseFloat(strings.Trim(string(b), `"`), 64)
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

// FlexInt accepts a JSON number (integral or not) or a numeric string.
// Unparseable strings decode to 0.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// FlexFloat accepts a JSON number or a numeric string.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(n)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FlexTime accepts the timestamp layouts the API emits. Anything else,
// including null, decodes to the zero time.
type FlexTime time.Time

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexTime) UnmarshalJSON(b []byte) error {
	*f = FlexTime(parseTime(strings.Trim(string(bytes.TrimSpace(b)), `"`)))
	return nil
}

// Time returns the decoded time.
func (f FlexTime) Time() time.Time {
	return time.Time(f)
}

func parseTime(s string) time.Time {
	if s == "" || s == "null" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// activeFlag treats a missing flag as active.
func activeFlag(f *FlexBool) bool {
	return f == nil || bool(*f)
}
