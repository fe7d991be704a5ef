package store

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"randomwiki/pkg/content"
)

var shareIDPattern = regexp.MustCompile(`^[0-9a-z]+$`)

func TestShareRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := NewShareRegistry(withShareClock(clock.Now))
	if err != nil {
		t.Fatalf("new share registry failed: %v", err)
	}

	token, err := registry.Create("Alan Turing", "en", "42")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !shareIDPattern.MatchString(token.ID) {
		t.Fatalf("token id = %q, want [0-9a-z]+", token.ID)
	}

	resolved, ok := registry.Resolve(token.ID)
	if !ok {
		t.Fatal("resolve failed")
	}
	if resolved.Article != "Alan Turing" || resolved.Locale != "en" || resolved.SharedBy != "42" {
		t.Fatalf("resolved = %+v, want Alan Turing/en/42", resolved)
	}
	if !resolved.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("created at = %v, want %v", resolved.CreatedAt, clock.Now())
	}
}

func TestShareRegistryResolve(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		id      func(token content.ShareToken) string
		wantOK  bool
	}{
		{
			name:   "known id",
			id:     func(token content.ShareToken) string { return token.ID },
			wantOK: true,
		},
		{
			name:   "unknown id",
			id:     func(content.ShareToken) string { return "doesnotexist" },
			wantOK: false,
		},
		{
			name:   "empty id",
			id:     func(content.ShareToken) string { return "" },
			wantOK: false,
		},
		{
			name:    "before expiry",
			elapsed: 30*24*time.Hour - time.Second,
			id:      func(token content.ShareToken) string { return token.ID },
			wantOK:  true,
		},
		{
			name:    "at expiry",
			elapsed: 30 * 24 * time.Hour,
			id:      func(token content.ShareToken) string { return token.ID },
			wantOK:  false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			registry, err := NewShareRegistry(withShareClock(clock.Now))
			if err != nil {
				t.Fatalf("new share registry failed: %v", err)
			}
			token, err := registry.Create("Go", "en", "42")
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}

			clock.Advance(testCase.elapsed)
			_, ok := registry.Resolve(testCase.id(token))
			if ok != testCase.wantOK {
				t.Fatalf("resolve ok = %v, want %v", ok, testCase.wantOK)
			}
		})
	}
}

func TestShareRegistryExpiredTokenIsPurged(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := NewShareRegistry(withShareClock(clock.Now), WithShareTTL(time.Minute))
	if err != nil {
		t.Fatalf("new share registry failed: %v", err)
	}
	token, err := registry.Create("Go", "en", "42")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(time.Minute)
	if _, ok := registry.Resolve(token.ID); ok {
		t.Fatal("expired token resolved")
	}
	if got := registry.Len(); got != 0 {
		t.Fatalf("len = %d, want 0", got)
	}
}

func TestShareRegistryRejectsEmptyArticle(t *testing.T) {
	t.Parallel()

	registry, err := NewShareRegistry()
	if err != nil {
		t.Fatalf("new share registry failed: %v", err)
	}
	if _, err := registry.Create("  ", "en", "42"); !errors.Is(err, content.ErrEmptyTitle) {
		t.Fatalf("error = %v, want %v", err, content.ErrEmptyTitle)
	}
}

func TestShareRegistryTokensAreUnique(t *testing.T) {
	t.Parallel()

	registry, err := NewShareRegistry(WithShareCapacity(20000))
	if err != nil {
		t.Fatalf("new share registry failed: %v", err)
	}

	const count = 10000
	seen := make(map[string]struct{}, count)
	for range count {
		token, err := registry.Create("Go", "en", "42")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if _, exists := seen[token.ID]; exists {
			t.Fatalf("duplicate token id %q", token.ID)
		}
		seen[token.ID] = struct{}{}
	}
	if got := registry.Len(); got != count {
		t.Fatalf("len = %d, want %d", got, count)
	}
}

func TestShareRegistryCapacityEvictsOldest(t *testing.T) {
	t.Parallel()

	registry, err := NewShareRegistry(WithShareCapacity(2))
	if err != nil {
		t.Fatalf("new share registry failed: %v", err)
	}

	first, err := registry.Create("First", "en", "42")
	if err != nil {
		t.Fatalf("create first failed: %v", err)
	}
	if _, err := registry.Create("Second", "en", "42"); err != nil {
		t.Fatalf("create second failed: %v", err)
	}
	if _, err := registry.Create("Third", "en", "42"); err != nil {
		t.Fatalf("create third failed: %v", err)
	}

	if _, ok := registry.Resolve(first.ID); ok {
		t.Fatal("oldest token survived eviction")
	}
	if got := registry.Len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
}
