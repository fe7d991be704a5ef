package relay

import (
	"context"
)

// ServiceCommandCatalog is the canonical service registry key for command discovery.
const ServiceCommandCatalog = "relay.command_catalog"

// RegisteredCommand describes one runtime command registration entry.
type RegisteredCommand struct {
	// ModuleName identifies which module registered this command.
	ModuleName string
	// Command is the registered command declaration.
	Command CommandSpec
}

// CommandCatalog provides read access to registered commands.
//
// Implementations must be concurrency-safe because modules can list commands
// from multiple workers at the same time.
type CommandCatalog interface {
	// ListCommands returns a copy of all currently registered command entries.
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
