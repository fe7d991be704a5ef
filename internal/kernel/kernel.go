package kernel

import (
	"context"
	"fmt"
	"sync"

	"randomwiki/pkg/relay"
)

// Kernel wires drivers, modules and services around one event bus.
//
// Registration happens before Run. Services must be registered before the
// modules that declare them as required.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry

	mu       sync.RWMutex
	modules  []*moduleRecord
	byName   map[string]*moduleRecord
	commands map[string]commandRegistration
	aliases  map[string]string
	drivers  []relay.Driver

	runMu   sync.Mutex
	running bool
}

// New builds a kernel and registers its built-in command catalog service.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	busOptions := []BusOption{
		WithBusDefaults(cfg.subscriptionBuffer, cfg.subscriptionWorker, cfg.handlerTimeout),
		WithBusErrorHandler(cfg.onAsyncError),
	}
	if cfg.deliveryObserver != nil {
		busOptions = append(busOptions, WithBusObserver(cfg.deliveryObserver))
	}

	k := &Kernel{
		cfg:      cfg,
		services: NewServiceRegistry(),
		byName:   make(map[string]*moduleRecord),
		commands: make(map[string]commandRegistration),
		aliases:  make(map[string]string),
	}
	if cfg.handlerErrorReply != "" {
		busOptions = append(busOptions, WithBusFaultHandler(k.replyHandlerFault))
	}
	k.bus = NewEventBus(busOptions...)
	if err := k.services.Register(relay.ServiceCommandCatalog, &kernelCommandCatalog{kernel: k}); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog", err)
	}

	return k
}

// EventBus returns the bus modules subscribe to.
func (k *Kernel) EventBus() relay.EventBus {
	return k.bus
}

// Services returns the shared service registry.
func (k *Kernel) Services() relay.ServiceRegistry {
	return k.services
}

// RegisterService adds one named service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterModule validates the module spec, claims its commands, runs
// OnRegister and subscribes its declared handlers. Any failure rolls the
// module back out completely.
func (k *Kernel) RegisterModule(ctx context.Context, module relay.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{name: name, module: module, capabilities: spec.Capabilities()}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	if err := k.addModule(record); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	if err := k.bindModule(ctx, record, spec); err != nil {
		k.rollbackModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	return nil
}

func (k *Kernel) addModule(record *moduleRecord) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.byName[record.name]; exists {
		return relay.ErrModuleAlreadyRegistered
	}
	k.byName[record.name] = record
	k.modules = append(k.modules, record)

	return nil
}

// bindModule performs the registration steps that need rollback on failure.
func (k *Kernel) bindModule(ctx context.Context, record *moduleRecord, spec relay.ModuleSpec) error {
	if err := k.registerModuleCommands(ctx, record.name, spec.Commands); err != nil {
		return err
	}

	runtime := &moduleRuntime{
		moduleName:    record.name,
		serviceLookup: k.services,
		bus:           k.bus,
		record:        record,
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	if registrar, ok := record.module.(relay.ModuleRegistrar); ok {
		if err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			return err
		}
	}

	for index, declared := range spec.Handlers {
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", record.name, index+1)
		}
		if _, err := runtime.Subscribe(hookCtx, declared.Capability.Interest, subscription, declared.Handler); err != nil {
			return fmt.Errorf(
				"register handler %s for capability %s: %w",
				subscription.Name,
				declared.Capability.Name,
				err,
			)
		}
	}

	return nil
}

// rollbackModule drops a partially registered module and its subscriptions.
func (k *Kernel) rollbackModule(ctx context.Context, record *moduleRecord) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(rollbackCtx); err != nil {
		k.cfg.onAsyncError(rollbackCtx, "rollback module "+record.name, err)
	}
	k.unregisterModuleCommands(record.name)

	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.byName, record.name)
	kept := k.modules[:0]
	for _, existing := range k.modules {
		if existing != record {
			kept = append(kept, existing)
		}
	}
	k.modules = kept
}

// RegisterDriver adds one platform driver. Names must be unique.
func (k *Kernel) RegisterDriver(driver relay.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.drivers {
		if existing.Name() == name {
			return fmt.Errorf("register driver %s: %w", name, relay.ErrDriverAlreadyRegistered)
		}
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

func (k *Kernel) moduleSnapshot() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return append([]*moduleRecord(nil), k.modules...)
}

func (k *Kernel) driverSnapshot() []relay.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return append([]relay.Driver(nil), k.drivers...)
}

func (k *Kernel) checkRequiredServices(capabilities []relay.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}
