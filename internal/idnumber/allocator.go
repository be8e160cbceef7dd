// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package idnumber produces the human-readable student/staff
// identifiers of the form LIS-<YY><course><faculty>-<seq>.
//
// The allocator only computes a good-faith next candidate for a scope.
// It never reserves anything: the identifier is committed when the
// profile row carrying it is inserted, and the unique index on the
// id_number column is the authoritative uniqueness guarantor. Callers
// that hit an insert conflict must re-run the whole allocation, not
// increment locally, because a concurrent caller may have advanced the
// sequence further than this caller observed.
package idnumber

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Domain errors
var (
	ErrInvalidCode    = errors.New("course or faculty code must be non-empty and alphabetic")
	ErrNoneAllocated  = errors.New("no identifier allocated in scope")
	ErrMalformedValue = errors.New("malformed identifier")
)

const (
	tag = "LIS"

	// codeWidth is the fixed width every normalized course/faculty
	// code is truncated or padded to. Fixed-width codes make the scope
	// prefix position-stable, so scope "AB" can never shadow "ABX".
	codeWidth = 3

	// padChar fills short codes up to codeWidth.
	padChar = 'X'

	// minSeqWidth is the minimum zero-padded width of the sequence
	// segment. Wider sequences render at their natural width.
	minSeqWidth = 3
)

// NormalizeCode uppercases a free-text course or faculty name and
// reduces it to the fixed-width code used in identifiers. Interior
// whitespace is removed first, so "B Sc" and "BSc" normalize alike.
// The whole input is validated: any non-letter anywhere rejects the
// name, even past the surviving width.
func NormalizeCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return "", ErrInvalidCode
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "", ErrInvalidCode
	}
	code := b.String()
	if len(code) > codeWidth {
		code = code[:codeWidth]
	}
	for len(code) < codeWidth {
		code += string(padChar)
	}
	return code, nil
}

// ScopeKey partitions the identifier sequence space. All three fields
// hold normalized, fixed-width values.
type ScopeKey struct {
	Year    string // two digits
	Course  string // codeWidth chars
	Faculty string // codeWidth chars
}

// NewScopeKey normalizes the raw course and faculty names into a scope
// key for the given time.
func NewScopeKey(at time.Time, course, faculty string) (ScopeKey, error) {
	c, err := NormalizeCode(course)
	if err != nil {
		return ScopeKey{}, fmt.Errorf("course: %w", err)
	}
	f, err := NormalizeCode(faculty)
	if err != nil {
		return ScopeKey{}, fmt.Errorf("faculty: %w", err)
	}
	return ScopeKey{
		Year:    fmt.Sprintf("%02d", at.Year()%100),
		Course:  c,
		Faculty: f,
	}, nil
}

// Prefix renders the scope's identifier prefix up to and including the
// separator before the sequence segment. Because every component is
// fixed-width, a prefix match on this string can only hit identifiers
// of exactly this scope.
func (k ScopeKey) Prefix() string {
	return tag + "-" + k.Year + k.Course + k.Faculty + "-"
}

// Format renders the identifier for a sequence number in this scope.
// The sequence is zero-padded to minSeqWidth and widens, never
// truncates, beyond it.
func (k ScopeKey) Format(seq int) string {
	return fmt.Sprintf("%s%0*d", k.Prefix(), minSeqWidth, seq)
}

// ParseSeq extracts the sequence number from a full identifier.
func ParseSeq(idNumber string) (int, error) {
	i := strings.LastIndexByte(idNumber, '-')
	if i < 0 || i == len(idNumber)-1 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, idNumber)
	}
	seq, err := strconv.Atoi(idNumber[i+1:])
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, idNumber)
	}
	return seq, nil
}

// Repository reads committed identifiers.
type Repository interface {
	// LastAllocated returns the committed identifier with the highest
	// sequence number under the given scope prefix, or ErrNoneAllocated
	// when the scope is empty.
	LastAllocated(ctx context.Context, prefix string) (string, error)
}

// Allocator computes next identifier candidates.
type Allocator struct {
	repo Repository
	now  func() time.Time
}

// NewAllocator creates an allocator. A nil clock defaults to time.Now;
// tests inject a fixed clock to pin the year segment.
func NewAllocator(repo Repository, clock func() time.Time) *Allocator {
	if clock == nil {
		clock = time.Now
	}
	return &Allocator{repo: repo, now: clock}
}

// Next returns the next unclaimed identifier candidate for the scope
// derived from the raw course and faculty names at the current year.
func (a *Allocator) Next(ctx context.Context, course, faculty string) (string, error) {
	key, err := NewScopeKey(a.now(), course, faculty)
	if err != nil {
		return "", err
	}
	return a.NextInScope(ctx, key)
}

// NextInScope returns the next unclaimed identifier candidate for an
// already-built scope key.
func (a *Allocator) NextInScope(ctx context.Context, key ScopeKey) (string, error) {
	last, err := a.repo.LastAllocated(ctx, key.Prefix())
	if err != nil {
		if errors.Is(err, ErrNoneAllocated) {
			return key.Format(1), nil
		}
		return "", fmt.Errorf("failed to look up last identifier in scope %s: %w", key.Prefix(), err)
	}

	seq, err := ParseSeq(last)
	if err != nil {
		return "", fmt.Errorf("stored identifier in scope %s: %w", key.Prefix(), err)
	}
	return key.Format(seq + 1), nil
}
