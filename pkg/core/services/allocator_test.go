package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

func TestValidateCustom(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo())

	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{name: "simple", code: "docs"},
		{name: "mixed", code: "Promo_2026-spring"},
		{name: "minimum length", code: "abc"},
		{name: "maximum length", code: strings.Repeat("a", 50)},
		{name: "too short", code: "ab", wantErr: true},
		{name: "too long", code: strings.Repeat("a", 51), wantErr: true},
		{name: "space", code: "my code", wantErr: true},
		{name: "slash", code: "a/b/c", wantErr: true},
		{name: "leading hyphen", code: "-abc", wantErr: true},
		{name: "trailing underscore", code: "abc_", wantErr: true},
		{name: "reserved", code: "admin", wantErr: true},
		{name: "reserved any case", code: "StAgInG", wantErr: true},
		{name: "reserved undefined", code: "undefined", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ValidateCustom(tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllocate_ReservedAlwaysRejected(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo())
	_, err := a.Allocate(context.Background(), "ns1", 0, "", "admin")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAllocate_CustomTaken(t *testing.T) {
	repo := newMemURLRepo()
	require.NoError(t, repo.Create(context.Background(), &domain.ShortURL{NamespaceID: "ns1", Shortcode: "docs"}))
	a := NewShortcodeAllocator(repo)

	_, err := a.Allocate(context.Background(), "ns1", 0, "", "docs")
	assert.ErrorIs(t, err, domain.ErrConflict)

	code, err := a.Allocate(context.Background(), "ns2", 0, "", "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", code)
}

func TestAllocate_Random(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo())
	code, err := a.Allocate(context.Background(), "ns1", 8, domain.MethodRandom, "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9]{8}$`), code)
}

func TestAllocate_CustomCharset(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo(), WithCharset("XY"))
	code, err := a.Allocate(context.Background(), "ns1", 5, domain.MethodRandom, "")
	require.NoError(t, err)
	assert.Regexp(t, `^[XY]{5}$`, code)
}

func TestAllocate_UnknownMethodFallsBackToRandom(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo())
	code, err := a.Allocate(context.Background(), "ns1", 6, domain.MethodURLBased, "")
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestAllocate_SequentialSkipsTaken(t *testing.T) {
	repo := newMemURLRepo()
	repo.existsHits["aaaaaa"] = true
	repo.existsHits["aaaaab"] = true
	a := NewShortcodeAllocator(repo)

	code, err := a.Allocate(context.Background(), "ns1", 6, domain.MethodSequential, "")
	require.NoError(t, err)
	assert.Equal(t, "aaaaac", code)
}

func TestAllocate_Exhausted(t *testing.T) {
	repo := newMemURLRepo()
	a := NewShortcodeAllocator(repo, WithCharset("z"))
	repo.existsHits["zzz"] = true

	_, err := a.Allocate(context.Background(), "ns1", 3, domain.MethodRandom, "")
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)
}

func TestAllocate_InvalidLength(t *testing.T) {
	a := NewShortcodeAllocator(newMemURLRepo())
	_, err := a.Allocate(context.Background(), "ns1", 2, domain.MethodRandom, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSequentialCode(t *testing.T) {
	tests := []struct {
		counter int64
		length  int
		want    string
	}{
		{0, 6, "aaaaaa"},
		{1, 6, "aaaaab"},
		{25, 6, "aaaaaz"},
		{26, 6, "aaaaa0"},
		{35, 6, "aaaaa9"},
		{36, 6, "aaaaba"},
		{36, 3, "aba"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sequentialCode(tt.counter, tt.length), "counter %d", tt.counter)
	}
}

func TestMemorableCode(t *testing.T) {
	pattern := regexp.MustCompile(`^(pro|max|ultra|mega|fast|quick|rapid|swift|link|url|web|net|go|to|me|us)[a-z0-9]*$`)
	for i := 0; i < 200; i++ {
		code, err := memorableCode(8)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(code), 8)
		assert.GreaterOrEqual(t, len(code), domain.MinShortcodeLength)
		assert.Regexp(t, pattern, code)
	}
}

func TestAllocate_StoreErrorPropagates(t *testing.T) {
	a := NewShortcodeAllocator(failingChecker{err: domain.ErrStoreUnavailable})
	_, err := a.Allocate(context.Background(), "ns1", 6, domain.MethodRandom, "")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

type failingChecker struct{ err error }

func (f failingChecker) Exists(context.Context, string, string) (bool, error) { return false, f.err }
func (f failingChecker) CountByNamespace(context.Context, string) (int64, error) {
	return 0, f.err
}

// Concurrent creates of the same custom code: the store decides, exactly one wins.
func TestCreate_ConcurrentCustomCodeSingleWinner(t *testing.T) {
	repo := newMemURLRepo()
	svc := newTestURLService(repo, newMemURLCache())

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), domain.CreateURLParams{
				NamespaceID: "ns1",
				OriginalURL: "https://example.com/x",
				CustomCode:  "launch",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}
