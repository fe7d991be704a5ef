// Package help answers /help with the commands registered in the kernel.
package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"randomwiki/pkg/relay"
)

const (
	helpCommandName = "help"
	// HelpButtonLabel is the reply keyboard label that triggers /help.
	HelpButtonLabel = "❓ Help"
)

// Module replies with command reference text when it receives a /help command.
type Module struct {
	dispatcher     relay.Dispatcher
	commandCatalog relay.CommandCatalog
}

// New creates a help module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares interest in help command events.
func (m *Module) Spec() relay.ModuleSpec {
	return relay.ModuleSpec{
		Handlers: []relay.ModuleHandler{
			{
				Capability: relay.Capability{
					Name:        "help-command-handler",
					Description: "renders registered command help for /help",
					Interest: relay.InterestSet{
						Kinds:          []relay.EventKind{relay.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{helpCommandName},
					},
					RequiredServices: []string{
						relay.ServiceDispatcher,
						relay.ServiceCommandCatalog,
					},
				},
				Subscription: relay.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []relay.CommandSpec{
			{
				Prefix:      relay.CommandPrefixOrdinary,
				Name:        helpCommandName,
				Description: "Show available commands",
				Aliases:     []string{HelpButtonLabel},
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime relay.ModuleRuntime) error {
	dispatcher, err := relay.ResolveAs[relay.Dispatcher](runtime.Services(), relay.ServiceDispatcher)
	if err != nil {
		return fmt.Errorf("help resolve outbound dispatcher: %w", err)
	}
	commandCatalog, err := relay.ResolveAs[relay.CommandCatalog](runtime.Services(), relay.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *relay.Event) error {
	if event == nil || event.Command == nil || event.Kind != relay.EventKindCommandReceived {
		return nil
	}
	if event.Command.Name != helpCommandName {
		return nil
	}
	if m.dispatcher == nil {
		return fmt.Errorf("help handle command: outbound dispatcher not configured")
	}
	if m.commandCatalog == nil {
		return fmt.Errorf("help handle command: command catalog not configured")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}

	target, err := relay.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	if _, err := m.dispatcher.SendMessage(ctx, relay.SendMessageRequest{
		Target: target,
		Text:   renderHelp(commands),
	}); err != nil {
		return fmt.Errorf("help send help message: %w", err)
	}

	return nil
}

// renderHelp lists one "/name <usage> - description" line per command.
func renderHelp(commands []relay.RegisteredCommand) string {
	if len(commands) == 0 {
		return "Available commands:\n(none)"
	}

	sorted := append([]relay.RegisteredCommand(nil), commands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return commandLabel(sorted[i].Command) < commandLabel(sorted[j].Command)
	})

	lines := make([]string, 0, len(sorted)+1)
	lines = append(lines, "Available commands:")
	for _, command := range sorted {
		line := commandLabel(command.Command)
		if usage := strings.TrimSpace(command.Command.Usage); usage != "" {
			line += " " + usage
		}
		if description := strings.TrimSpace(command.Command.Description); description != "" {
			line += " - " + description
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func commandLabel(command relay.CommandSpec) string {
	return fmt.Sprintf("%s%s", command.Prefix, strings.ToLower(strings.TrimSpace(command.Name)))
}

var (
	_ relay.Module          = (*Module)(nil)
	_ relay.ModuleRegistrar = (*Module)(nil)
)
