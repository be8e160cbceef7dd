package idnumber

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory committed-identifier set. Commit simulates
// the persistence layer's unique index: inserting a duplicate fails.
type fakeRepo struct {
	mu        sync.Mutex
	committed map[string]bool
	err       error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{committed: make(map[string]bool)}
}

func (r *fakeRepo) LastAllocated(_ context.Context, prefix string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	best, bestSeq := "", -1
	for idNum := range r.committed {
		if !strings.HasPrefix(idNum, prefix) {
			continue
		}
		seq, err := ParseSeq(idNum)
		if err != nil {
			continue
		}
		if seq > bestSeq {
			best, bestSeq = idNum, seq
		}
	}
	if best == "" {
		return "", ErrNoneAllocated
	}
	return best, nil
}

var errDuplicate = errors.New("duplicate id_number")

func (r *fakeRepo) commit(idNum string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committed[idNum] {
		return errDuplicate
	}
	r.committed[idNum] = true
	return nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"BSc", "BSC", false},
		{"bsc", "BSC", false},
		{"  Science  ", "SCI", false},
		{"Engineering", "ENG", false},
		{"IT", "ITX", false},
		{"b s c", "BSC", false},
		{"a", "AXX", false},
		{"", "", true},
		{"   ", "", true},
		{"B5", "", true},
		{"1IT", "", true},
		// Non-letters past the surviving width reject too; strictness
		// does not depend on where the bad character sits.
		{"ABC5", "", true},
		{"BSc Year 2", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 3)
		})
	}
}

func TestScopeKey_Prefix(t *testing.T) {
	key, err := NewScopeKey(fixedClock(2025)(), "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-", key.Prefix())
	assert.Equal(t, "LIS-25BSCSCI-007", key.Format(7))
}

func TestAllocator_Next_EmptyScope(t *testing.T) {
	alloc := NewAllocator(newFakeRepo(), fixedClock(2025))

	got, err := alloc.Next(context.Background(), "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-001", got)
}

func TestAllocator_Next_Increments(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.commit("LIS-25BSCSCI-007"))
	alloc := NewAllocator(repo, fixedClock(2025))

	got, err := alloc.Next(context.Background(), "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-008", got)
}

func TestAllocator_Next_InvalidInput(t *testing.T) {
	alloc := NewAllocator(newFakeRepo(), fixedClock(2025))

	_, err := alloc.Next(context.Background(), "", "Science")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = alloc.Next(context.Background(), "B5c", "Science")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestAllocator_Next_StoreUnavailable(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("connection refused")
	alloc := NewAllocator(repo, fixedClock(2025))

	_, err := alloc.Next(context.Background(), "BSc", "Science")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCode)
}

// Scopes that overlap textually when codes are variable-width must stay
// isolated once codes are normalized to fixed width.
func TestAllocator_PrefixIsolation(t *testing.T) {
	repo := newFakeRepo()
	alloc := NewAllocator(repo, fixedClock(2024))
	ctx := context.Background()

	first, err := alloc.Next(ctx, "ABC", "ENG")
	require.NoError(t, err)
	require.NoError(t, repo.commit(first))
	assert.Equal(t, "LIS-24ABCENG-001", first)

	// "AB" pads to ABX, "CENG" truncates to CEN: different scope.
	second, err := alloc.Next(ctx, "AB", "CENG")
	require.NoError(t, err)
	assert.Equal(t, "LIS-24ABXCEN-001", second)
	assert.NotEqual(t, first, second)
	require.NoError(t, repo.commit(second))

	// Allocating again in the first scope is unaffected by the second.
	third, err := alloc.Next(ctx, "ABC", "ENG")
	require.NoError(t, err)
	assert.Equal(t, "LIS-24ABCENG-002", third)
}

// The sequence segment widens past the zero-pad width instead of
// truncating, and lookups keep returning the true numeric maximum.
func TestAllocator_PaddingGrowth(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.commit("LIS-25BSCSCI-999"))
	alloc := NewAllocator(repo, fixedClock(2025))
	ctx := context.Background()

	got, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-1000", got)
	require.NoError(t, repo.commit(got))

	got, err = alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-1001", got)
}

// Two racing callers may compute the same candidate; the loser's commit
// conflicts, and re-allocation (not local increment) yields the next
// free value.
func TestAllocator_ConflictReallocates(t *testing.T) {
	repo := newFakeRepo()
	alloc := NewAllocator(repo, fixedClock(2025))
	ctx := context.Background()

	a, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	b, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, a, b) // both observed the empty scope

	require.NoError(t, repo.commit(a))
	require.ErrorIs(t, repo.commit(b), errDuplicate)

	retry, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-002", retry)
	require.NoError(t, repo.commit(retry))
}

// N concurrent allocate-and-commit cycles in one scope must end with
// exactly N distinct committed identifiers.
func TestAllocator_ConcurrentUniqueness(t *testing.T) {
	const n = 32
	repo := newFakeRepo()
	alloc := NewAllocator(repo, fixedClock(2025))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				candidate, err := alloc.Next(ctx, "BSc", "Science")
				if err != nil {
					t.Error(err)
					return
				}
				if repo.commit(candidate) == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, repo.committed, n)

	// Monotonicity: the committed set is exactly 1..n.
	seqs := make([]int, 0, n)
	for idNum := range repo.committed {
		seq, err := ParseSeq(idNum)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		assert.Equal(t, i+1, seq)
	}
}

func TestParseSeq(t *testing.T) {
	seq, err := ParseSeq("LIS-25BSCSCI-007")
	require.NoError(t, err)
	assert.Equal(t, 7, seq)

	seq, err = ParseSeq("LIS-25BSCSCI-1000")
	require.NoError(t, err)
	assert.Equal(t, 1000, seq)

	for _, bad := range []string{"", "LIS-25BSCSCI-", "LIS-25BSCSCI-x7", "nodash"} {
		_, err := ParseSeq(bad)
		assert.ErrorIs(t, err, ErrMalformedValue, fmt.Sprintf("input %q", bad))
	}
}

func TestAllocator_YearReadAtCallTime(t *testing.T) {
	repo := newFakeRepo()
	year := 2025
	alloc := NewAllocator(repo, func() time.Time { return fixedClock(year)() })
	ctx := context.Background()

	first, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	require.NoError(t, repo.commit(first))

	year = 2026
	next, err := alloc.Next(ctx, "BSc", "Science")
	require.NoError(t, err)
	assert.Equal(t, "LIS-26BSCSCI-001", next) // fresh scope, fresh sequence
}
