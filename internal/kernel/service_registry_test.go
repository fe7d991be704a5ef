package kernel

import (
	"errors"
	"testing"

	"randomwiki/pkg/relay"
)

func TestServiceRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		serviceName   string
		service       any
		registerTwice bool
		wantErr       error
	}{
		{
			name:        "resolves registered service",
			serviceName: "wiki.locales",
			service:     "locale-registry",
		},
		{
			name:          "second registration is rejected and keeps the first",
			serviceName:   "wiki.history",
			service:       "history-log",
			registerTwice: true,
			wantErr:       relay.ErrServiceAlreadyRegistered,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register(testCase.serviceName, testCase.service); err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if testCase.registerTwice {
				err := registry.Register(testCase.serviceName, "replacement")
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("second register error = %v, want %v", err, testCase.wantErr)
				}
			}

			resolved, err := registry.Resolve(testCase.serviceName)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if resolved != testCase.service {
				t.Fatalf("resolved = %v, want %v", resolved, testCase.service)
			}
		})
	}
}

func TestServiceRegistryRejectsInvalidRegistrations(t *testing.T) {
	t.Parallel()

	var nilDispatcher *captureDispatcher

	tests := []struct {
		name        string
		serviceName string
		service     any
	}{
		{name: "empty name", serviceName: "", service: "value"},
		{name: "untyped nil", serviceName: "svc", service: nil},
		{name: "typed nil pointer", serviceName: relay.ServiceDispatcher, service: nilDispatcher},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register(testCase.serviceName, testCase.service); err == nil {
				t.Fatal("expected register error")
			}
		})
	}
}

func TestServiceRegistryResolveMissing(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	if _, err := registry.Resolve("missing"); !errors.Is(err, relay.ErrServiceNotFound) {
		t.Fatalf("resolve error = %v, want %v", err, relay.ErrServiceNotFound)
	}
	if _, err := relay.ResolveAs[relay.Dispatcher](registry, relay.ServiceDispatcher); !errors.Is(err, relay.ErrServiceNotFound) {
		t.Fatalf("resolve as error = %v, want %v", err, relay.ErrServiceNotFound)
	}
}
