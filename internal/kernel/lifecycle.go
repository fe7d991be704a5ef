package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"randomwiki/pkg/relay"
)

// Run starts modules, runs every driver and blocks until ctx ends, a driver
// fails, or all drivers return. Shutdown always runs before Run returns.
// Cancellation of ctx is a clean exit and yields nil.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.startRun(); err != nil {
		return err
	}
	defer k.finishRun()

	if err := k.startModules(ctx); err != nil {
		return err
	}

	runErr := k.runDrivers(ctx)
	shutdownErr := k.shutdownAll(ctx)

	return errors.Join(runErr, shutdownErr)
}

func (k *Kernel) startRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true

	return nil
}

func (k *Kernel) finishRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

// startModules calls OnStart in registration order, each under the hook timeout.
func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.moduleSnapshot() {
		if err := k.callHook(ctx, record.name+" OnStart", record.module.OnStart); err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// runDrivers starts all drivers in one group sharing the kernel sink. The
// first fatal driver error cancels the rest and is returned. Waiting for
// drivers to return after the stop signal is bounded by the shutdown timeout.
func (k *Kernel) runDrivers(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	sink := k.newDriverEventSink()

	for _, driver := range k.driverSnapshot() {
		group.Go(func() error {
			name := driver.Name()
			err := runSafely("driver "+name+" Start", func() error {
				return driver.Start(groupCtx, sink)
			})
			if err == nil || isContextCancellation(err) {
				return nil
			}

			return fmt.Errorf("run driver %s: %w", name, err)
		})
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	<-groupCtx.Done()
	failure := context.Cause(groupCtx)
	if isContextCancellation(failure) {
		failure = nil
	}

	select {
	case <-done:
	case <-time.After(k.cfg.shutdownTimeout):
		k.cfg.onAsyncError(ctx, "wait drivers", fmt.Errorf("drivers still running after %s", k.cfg.shutdownTimeout))
	}

	return failure
}

// shutdownAll stops drivers, then modules, then the bus. It runs on a context
// detached from ctx so cleanup still happens after cancellation.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	var shutdownErr error

	drivers := k.driverSnapshot()
	for index := len(drivers) - 1; index >= 0; index-- {
		driver := drivers[index]
		if err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(shutdownCtx)
		}); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	modules := k.moduleSnapshot()
	for index := len(modules) - 1; index >= 0; index-- {
		record := modules[index]
		if err := record.closeSubscriptions(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		if err := k.callHook(shutdownCtx, record.name+" OnShutdown", record.module.OnShutdown); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	if err := k.bus.Close(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

// callHook runs one module lifecycle hook with panic recovery and the hook timeout.
func (k *Kernel) callHook(ctx context.Context, scope string, hook func(context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	return runSafely("module "+scope, func() error {
		return hook(hookCtx)
	})
}

// validateModuleSpec rejects specs with duplicate names or missing handlers.
func validateModuleSpec(spec relay.ModuleSpec) error {
	capabilities := make(map[string]struct{}, len(spec.Handlers)+len(spec.AdditionalCapabilities))
	claimCapability := func(name string) error {
		if name == "" {
			return fmt.Errorf("empty capability name")
		}
		if _, exists := capabilities[name]; exists {
			return fmt.Errorf("duplicate capability name %s", name)
		}
		capabilities[name] = struct{}{}

		return nil
	}

	subscriptions := make(map[string]struct{}, len(spec.Handlers))
	for index, handler := range spec.Handlers {
		if err := claimCapability(handler.Capability.Name); err != nil {
			return fmt.Errorf("module handler %d: %w", index, err)
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
		name := handler.Subscription.Name
		if name == "" {
			continue
		}
		if _, exists := subscriptions[name]; exists {
			return fmt.Errorf("module handler %s: duplicate subscription name %s", handler.Capability.Name, name)
		}
		subscriptions[name] = struct{}{}
	}
	for index, capability := range spec.AdditionalCapabilities {
		if err := claimCapability(capability.Name); err != nil {
			return fmt.Errorf("additional capability %d: %w", index, err)
		}
	}

	return validateModuleCommands(spec.Commands)
}

func validateModuleCommands(commands []relay.CommandSpec) error {
	seenCommands := make(map[string]struct{}, len(commands))
	seenAliases := make(map[string]struct{})

	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", index, err)
		}
		key := commandRegistryKey(command.Prefix, command.Name)
		if _, exists := seenCommands[key]; exists {
			return fmt.Errorf("module command %d: duplicate command %s", index, formatCommandKey(command.Prefix, command.Name))
		}
		seenCommands[key] = struct{}{}

		for _, alias := range command.Aliases {
			alias = relay.NormalizeCommandAlias(alias)
			if _, exists := seenAliases[alias]; exists {
				return fmt.Errorf("module command %d: duplicate alias %q", index, alias)
			}
			seenAliases[alias] = struct{}{}
		}
	}

	return nil
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
