package relay

import "strings"

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	// Kinds restricts delivery to the listed event kinds.
	Kinds []EventKind
	// RequireCommand requires a bound command payload.
	RequireCommand bool
	// CommandNames restricts command events to the listed normalized names.
	CommandNames []string
	// CallbackPrefixes restricts callback events to payloads starting with one prefix.
	CallbackPrefixes []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil {
			return false
		}
		if !containsString(i.CommandNames, normalizeCommandName(event.Command.Name)) {
			return false
		}
	}
	if len(i.CallbackPrefixes) > 0 {
		if event.Callback == nil {
			return false
		}
		if !hasAnyPrefix(event.Callback.Data, i.CallbackPrefixes) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allKindsIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 && !allStringsIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}
	if len(i.CallbackPrefixes) > 0 {
		if len(filter.CallbackPrefixes) == 0 {
			return false
		}
		for _, prefix := range filter.CallbackPrefixes {
			if !hasAnyPrefix(prefix, i.CallbackPrefixes) {
				return false
			}
		}
	}

	return true
}

func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

// allKindsIncluded reports whether subset is fully contained in allowed.
// An empty subset means "every kind" and is never contained in a restricted set.
func allKindsIncluded(subset, allowed []EventKind) bool {
	if len(subset) == 0 {
		return false
	}
	for _, item := range subset {
		if !containsKind(allowed, item) {
			return false
		}
	}

	return true
}

func containsString(values []string, target string) bool {
	for _, candidate := range values {
		if normalizeCommandName(candidate) == target {
			return true
		}
	}

	return false
}

func allStringsIncluded(subset, allowed []string) bool {
	if len(subset) == 0 {
		return false
	}
	for _, item := range subset {
		if !containsString(allowed, normalizeCommandName(item)) {
			return false
		}
	}

	return true
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	return false
}
