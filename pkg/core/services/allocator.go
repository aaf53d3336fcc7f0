package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
)

const (
	defaultCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	base36Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var reservedCodes = map[string]struct{}{
	"admin": {}, "api": {}, "www": {}, "mail": {}, "ftp": {}, "root": {}, "system": {},
	"test": {}, "dev": {}, "staging": {}, "prod": {}, "null": {}, "undefined": {},
}

// memorablePatterns each build a short word-like candidate.
var memorablePatterns = []func() (string, error){
	func() (string, error) { return wordNumber([]string{"pro", "max", "ultra", "mega"}, 10, 99) },
	func() (string, error) {
		return wordSuffix([]string{"fast", "quick", "rapid", "swift"}, []string{"ly", "er", "est"})
	},
	func() (string, error) { return wordNumber([]string{"link", "url", "web", "net"}, 100, 999) },
	func() (string, error) {
		return wordSuffix([]string{"go", "to", "me", "us"}, []string{"link", "url", "web"})
	},
}

// AvailabilityChecker is the slice of the URL store the allocator needs.
type AvailabilityChecker interface {
	Exists(ctx context.Context, namespaceID, shortcode string) (bool, error)
	CountByNamespace(ctx context.Context, namespaceID string) (int64, error)
}

type ShortcodeAllocator struct {
	store         AvailabilityChecker
	charset       string
	defaultLength int
	defaultMethod domain.GenerationMethod
	maxAttempts   int
}

type AllocatorOption func(*ShortcodeAllocator)

// WithCharset sets the alphabet used by the random method.
func WithCharset(charset string) AllocatorOption {
	return func(a *ShortcodeAllocator) {
		if charset != "" {
			a.charset = charset
		}
	}
}

func WithDefaults(length int, method domain.GenerationMethod) AllocatorOption {
	return func(a *ShortcodeAllocator) {
		if length > 0 {
			a.defaultLength = length
		}
		if method != "" {
			a.defaultMethod = method
		}
	}
}

func NewShortcodeAllocator(store AvailabilityChecker, opts ...AllocatorOption) *ShortcodeAllocator {
	a := &ShortcodeAllocator{
		store:         store,
		charset:       defaultCharset,
		defaultLength: domain.DefaultShortcodeLength,
		defaultMethod: domain.MethodRandom,
		maxAttempts:   domain.MaxAllocationAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ValidateCustom checks a user supplied shortcode without touching the store.
func (a *ShortcodeAllocator) ValidateCustom(code string) error {
	if len(code) < domain.MinShortcodeLength || len(code) > domain.MaxShortcodeLength {
		return domain.NewValidationError("shortcode", fmt.Sprintf("must be %d-%d characters", domain.MinShortcodeLength, domain.MaxShortcodeLength))
	}
	if !customCodePattern.MatchString(code) {
		return domain.NewValidationError("shortcode", "may only contain letters, numbers, hyphens and underscores")
	}
	if strings.ContainsAny(code[:1], "-_") || strings.ContainsAny(code[len(code)-1:], "-_") {
		return domain.NewValidationError("shortcode", "cannot start or end with a hyphen or underscore")
	}
	if _, reserved := reservedCodes[strings.ToLower(code)]; reserved {
		return domain.NewValidationError("shortcode", "is a reserved word")
	}
	return nil
}

// Allocate returns a shortcode that was free in the namespace when checked.
// The store's create remains the final arbiter of uniqueness.
func (a *ShortcodeAllocator) Allocate(ctx context.Context, namespaceID string, length int, method domain.GenerationMethod, customCode string) (string, error) {
	if customCode != "" {
		if err := a.ValidateCustom(customCode); err != nil {
			return "", err
		}
		taken, err := a.store.Exists(ctx, namespaceID, customCode)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("shortcode %q: %w", customCode, domain.ErrConflict)
		}
		return customCode, nil
	}

	if length <= 0 {
		length = a.defaultLength
	}
	if length < domain.MinShortcodeLength || length > domain.MaxShortcodeLength {
		return "", domain.NewValidationError("length", fmt.Sprintf("must be %d-%d", domain.MinShortcodeLength, domain.MaxShortcodeLength))
	}
	if method == "" {
		method = a.defaultMethod
	}

	var offset int64
	if method == domain.MethodSequential {
		n, err := a.store.CountByNamespace(ctx, namespaceID)
		if err != nil {
			return "", err
		}
		offset = n
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		metrics.AllocationAttempts.WithLabelValues(string(method)).Inc()

		candidate, err := a.Candidate(method, length, int(offset)+attempt)
		if err != nil {
			return "", err
		}
		taken, err := a.store.Exists(ctx, namespaceID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	metrics.AllocationExhausted.Inc()
	return "", fmt.Errorf("namespace %s after %d attempts: %w", namespaceID, a.maxAttempts, domain.ErrAllocationExhausted)
}

// Candidate produces one candidate for the given method. Attempt feeds the sequential counter.
func (a *ShortcodeAllocator) Candidate(method domain.GenerationMethod, length, attempt int) (string, error) {
	switch method {
	case domain.MethodSequential:
		return sequentialCode(int64(attempt), length), nil
	case domain.MethodMemorable:
		return memorableCode(length)
	default:
		// url_based and unknown methods fall back to random.
		return randomCode(a.charset, length)
	}
}

func randomCode(charset string, length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := randInt(len(charset))
		if err != nil {
			return "", err
		}
		b[i] = charset[n]
	}
	return string(b), nil
}

// sequentialCode encodes counter in base36 (a=0), left padded with 'a' and cut to length.
func sequentialCode(counter int64, length int) string {
	var digits []byte
	if counter <= 0 {
		digits = []byte{base36Alphabet[0]}
	}
	for n := counter; n > 0; n /= 36 {
		digits = append([]byte{base36Alphabet[n%36]}, digits...)
	}
	code := string(digits)
	if len(code) < length {
		code = strings.Repeat("a", length-len(code)) + code
	}
	return code[:length]
}

func memorableCode(length int) (string, error) {
	i, err := randInt(len(memorablePatterns))
	if err != nil {
		return "", err
	}
	code, err := memorablePatterns[i]()
	if err != nil {
		return "", err
	}
	if len(code) > length {
		code = code[:length]
	}
	return code, nil
}

func wordNumber(words []string, lo, hi int) (string, error) {
	w, err := randInt(len(words))
	if err != nil {
		return "", err
	}
	n, err := randInt(hi - lo + 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", words[w], lo+n), nil
}

func wordSuffix(words, suffixes []string) (string, error) {
	w, err := randInt(len(words))
	if err != nil {
		return "", err
	}
	s, err := randInt(len(suffixes))
	if err != nil {
		return "", err
	}
	return words[w] + suffixes[s], nil
}

func randInt(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("empty choice set")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
