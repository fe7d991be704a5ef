package store

import (
	"strings"
	"sync"

	"randomwiki/pkg/content"
)

// LocaleRegistry remembers the locale each owner picked explicitly.
type LocaleRegistry struct {
	mu      sync.RWMutex
	locales map[string]string
}

// NewLocaleRegistry creates an empty registry.
func NewLocaleRegistry() *LocaleRegistry {
	return &LocaleRegistry{locales: make(map[string]string)}
}

// Lookup returns the locale owner selected, if any.
func (r *LocaleRegistry) Lookup(owner string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locale, ok := r.locales[owner]

	return locale, ok
}

// Set records locale for owner. An empty locale clears the selection.
func (r *LocaleRegistry) Set(owner string, locale string) {
	locale = strings.TrimSpace(locale)

	r.mu.Lock()
	defer r.mu.Unlock()

	if locale == "" {
		delete(r.locales, owner)
		return
	}
	r.locales[owner] = locale
}

var _ content.Locales = (*LocaleRegistry)(nil)
