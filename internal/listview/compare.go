// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package listview

import (
	"cmp"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// A collate.Collator keeps scratch buffers and is not safe for concurrent use.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

// CompareStrings orders strings the way an English-locale user expects:
// accents and case are secondary to the base letters.
func CompareStrings(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// ByString compares a string field with CompareStrings. Missing values are "".
func ByString[T any](get func(T) string) func(a, b T) int {
	return func(a, b T) int {
		return CompareStrings(get(a), get(b))
	}
}

// ByInt compares an integer field. Missing values should be reported as 0.
func ByInt[T any](get func(T) int64) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(get(a), get(b))
	}
}

// ByFloat compares a float field. Missing values should be reported as 0.
func ByFloat[T any](get func(T) float64) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(get(a), get(b))
	}
}

// epoch is where a missing timestamp sorts.
var epoch = time.Unix(0, 0)

// ByTime compares a timestamp field. A zero time sorts as the Unix epoch.
func ByTime[T any](get func(T) time.Time) func(a, b T) int {
	norm := func(t time.Time) time.Time {
		if t.IsZero() {
			return epoch
		}
		return t
	}
	return func(a, b T) int {
		return norm(get(a)).Compare(norm(get(b)))
	}
}

// Descending reverses a comparator.
func Descending[T any](c func(a, b T) int) func(a, b T) int {
	return func(a, b T) int {
		return c(b, a)
	}
}
