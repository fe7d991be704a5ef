package kernel

import (
	"errors"
	"testing"

	"randomwiki/pkg/relay"
)

func TestAssertSubscriptionAllowed(t *testing.T) {
	t.Parallel()

	commands := relay.Capability{
		Name: "wiki-commands",
		Interest: relay.InterestSet{
			Kinds:        []relay.EventKind{relay.EventKindCommandReceived},
			CommandNames: []string{"search", "share"},
		},
	}
	languageButtons := relay.Capability{
		Name: "language-buttons",
		Interest: relay.InterestSet{
			Kinds:            []relay.EventKind{relay.EventKindCallbackReceived},
			CallbackPrefixes: []string{"lang_"},
		},
	}

	tests := []struct {
		name         string
		capabilities []relay.Capability
		interest     relay.InterestSet
		wantErr      bool
		wantInvalid  bool
	}{
		{
			name:     "no capabilities",
			interest: relay.InterestSet{Kinds: []relay.EventKind{relay.EventKindMessageReceived}},
			wantErr:  true,
		},
		{
			name:         "subset of declared commands",
			capabilities: []relay.Capability{commands},
			interest: relay.InterestSet{
				Kinds:        []relay.EventKind{relay.EventKindCommandReceived},
				CommandNames: []string{"share"},
			},
		},
		{
			name:         "undeclared command",
			capabilities: []relay.Capability{commands},
			interest: relay.InterestSet{
				Kinds:        []relay.EventKind{relay.EventKindCommandReceived},
				CommandNames: []string{"trending"},
			},
			wantErr:     true,
			wantInvalid: true,
		},
		{
			name:         "narrower callback prefix",
			capabilities: []relay.Capability{commands, languageButtons},
			interest: relay.InterestSet{
				Kinds:            []relay.EventKind{relay.EventKindCallbackReceived},
				CallbackPrefixes: []string{"lang_fr"},
			},
		},
		{
			name:         "callback without prefix filter",
			capabilities: []relay.Capability{languageButtons},
			interest: relay.InterestSet{
				Kinds: []relay.EventKind{relay.EventKindCallbackReceived},
			},
			wantErr:     true,
			wantInvalid: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := assertSubscriptionAllowed(testCase.capabilities, "test-subscription", testCase.interest)
			if testCase.wantErr && err == nil {
				t.Fatal("expected subscription error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected subscription error: %v", err)
			}
			if testCase.wantInvalid && !errors.Is(err, relay.ErrInvalidSubscription) {
				t.Fatalf("error = %v, want %v", err, relay.ErrInvalidSubscription)
			}
		})
	}
}
