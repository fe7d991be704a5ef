package kernel

import (
	"context"
	"fmt"
	"strings"

	"randomwiki/pkg/relay"
)

type commandRegistration struct {
	moduleName string
	spec       relay.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs
// together with their button aliases.
func (k *Kernel) registerModuleCommands(
	_ context.Context,
	moduleName string,
	commands []relay.CommandSpec,
) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]relay.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	seenAliases := make(map[string]struct{})
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command = cloneCommandSpec(command)
		key := commandRegistryKey(command.Prefix, command.Name)
		if _, exists := seenInModule[key]; exists {
			return fmt.Errorf(
				"register command %s for module %s: duplicate declaration",
				formatCommandKey(command.Prefix, command.Name),
				moduleName,
			)
		}
		seenInModule[key] = struct{}{}
		for _, alias := range command.Aliases {
			if _, exists := seenAliases[alias]; exists {
				return fmt.Errorf("register alias %q for module %s: duplicate declaration", alias, moduleName)
			}
			seenAliases[alias] = struct{}{}
		}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		if existing, exists := k.commands[key]; exists {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				formatCommandKey(command.Prefix, command.Name),
				moduleName,
				existing.moduleName,
			)
		}
		for _, alias := range command.Aliases {
			if existingKey, exists := k.aliases[alias]; exists {
				return fmt.Errorf(
					"register alias %q for module %s: already bound to %s",
					alias,
					moduleName,
					existingKey,
				)
			}
		}
	}
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		k.commands[key] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
		for _, alias := range command.Aliases {
			k.aliases[alias] = key
		}
	}

	return nil
}

// unregisterModuleCommands removes every command and alias owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName != moduleName {
			continue
		}
		for _, alias := range registration.spec.Aliases {
			delete(k.aliases, alias)
		}
		delete(k.commands, key)
	}
}

// lookupCommand resolves one command spec by prefix + normalized name.
func (k *Kernel) lookupCommand(prefix relay.CommandPrefix, name string) (relay.CommandSpec, bool) {
	key := commandRegistryKey(prefix, name)

	k.mu.RLock()
	registration, exists := k.commands[key]
	k.mu.RUnlock()
	if !exists {
		return relay.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// lookupAlias resolves the command bound to an exact button label.
func (k *Kernel) lookupAlias(text string) (relay.CommandSpec, bool) {
	alias := relay.NormalizeCommandAlias(text)
	if alias == "" {
		return relay.CommandSpec{}, false
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	key, exists := k.aliases[alias]
	if !exists {
		return relay.CommandSpec{}, false
	}
	registration, exists := k.commands[key]
	if !exists {
		return relay.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// newDriverEventSink creates the source-event sink wrapped with command derivation.
func (k *Kernel) newDriverEventSink() relay.EventSink {
	return &commandDerivingSink{
		base:                k.bus,
		lookupCommand:       k.lookupCommand,
		lookupAlias:         k.lookupAlias,
		serviceLookup:       k.services,
		reportAsync:         k.cfg.onAsyncError,
		unknownCommandReply: k.cfg.unknownCommandReply,
	}
}

// commandDerivingSink publishes source events and derives command events.
//
// A message derives a command when its text starts with a registered
// "/name[@mention]" header or equals a registered alias exactly.
type commandDerivingSink struct {
	base                relay.EventSink
	lookupCommand       func(prefix relay.CommandPrefix, name string) (relay.CommandSpec, bool)
	lookupAlias         func(text string) (relay.CommandSpec, bool)
	serviceLookup       relay.ServiceRegistry
	reportAsync         func(context.Context, string, error)
	unknownCommandReply string
}

// Publish forwards one source event and conditionally derives one command event.
func (s *commandDerivingSink) Publish(ctx context.Context, event *relay.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if event.Kind != relay.EventKindMessageReceived || event.Message == nil {
		return nil
	}
	text := event.Message.Text

	if s.lookupAlias != nil {
		if spec, ok := s.lookupAlias(text); ok {
			invocation, err := relay.BindAlias(text, spec, event)
			if err != nil {
				s.reportAsyncError(ctx, "bind command alias", err)
				return nil
			}
			return s.publishDerived(ctx, event, invocation)
		}
	}

	candidate, matched, parseErr := relay.ParseCommandCandidate(text)
	if !matched {
		return nil
	}
	if parseErr != nil {
		s.reply(ctx, event, s.unknownCommandReply)
		return nil
	}

	spec, registered := s.lookupCommand(candidate.Prefix, candidate.Name)
	if !registered {
		s.reply(ctx, event, s.unknownCommandReply)
		return nil
	}

	invocation, bindErr := relay.BindCommand(candidate, spec, event)
	if bindErr != nil {
		s.reply(ctx, event, formatCommandErrorReply(spec, bindErr))
		return nil
	}

	return s.publishDerived(ctx, event, invocation)
}

func (s *commandDerivingSink) publishDerived(
	ctx context.Context,
	sourceEvent *relay.Event,
	invocation relay.CommandInvocation,
) error {
	commandEvent := derivedCommandEvent(sourceEvent, invocation)
	if err := s.base.Publish(ctx, commandEvent); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

// reply sends text back to the source conversation. Empty text is a no-op.
func (s *commandDerivingSink) reply(ctx context.Context, sourceEvent *relay.Event, text string) {
	if text == "" {
		return
	}
	if s.serviceLookup == nil {
		s.reportAsyncError(ctx, "command reply resolve dispatcher", fmt.Errorf("service lookup unavailable"))
		return
	}

	dispatcher, err := relay.ResolveAs[relay.Dispatcher](s.serviceLookup, relay.ServiceDispatcher)
	if err != nil {
		s.reportAsyncError(ctx, "command reply resolve dispatcher", err)
		return
	}

	target, err := relay.OutboundTargetFromEvent(sourceEvent)
	if err != nil {
		s.reportAsyncError(ctx, "command reply derive target", err)
		return
	}

	_, err = dispatcher.SendMessage(ctx, relay.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: sourceEvent.Message.ID,
	})
	if err != nil {
		s.reportAsyncError(ctx, "command reply send", err)
	}
}

func (s *commandDerivingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

func derivedCommandEvent(sourceEvent *relay.Event, invocation relay.CommandInvocation) *relay.Event {
	message := cloneMessage(*sourceEvent.Message)
	command := cloneCommandInvocation(invocation)

	return &relay.Event{
		ID:           sourceEvent.ID + "#command",
		Kind:         relay.EventKindCommandReceived,
		OccurredAt:   sourceEvent.OccurredAt,
		Platform:     sourceEvent.Platform,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Message:      &message,
		Command:      command,
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

func formatCommandErrorReply(spec relay.CommandSpec, err error) string {
	if err == nil {
		return "usage: " + commandUsage(spec)
	}

	return fmt.Sprintf("%s\nusage: %s", err.Error(), commandUsage(spec))
}

func commandUsage(spec relay.CommandSpec) string {
	usage := formatCommandKey(spec.Prefix, spec.Name)
	if hint := strings.TrimSpace(spec.Usage); hint != "" {
		usage += " " + hint
	}

	return usage
}

func commandRegistryKey(prefix relay.CommandPrefix, name string) string {
	return fmt.Sprintf("%s:%s", prefix, relay.NormalizeCommandName(name))
}

func formatCommandKey(prefix relay.CommandPrefix, name string) string {
	return fmt.Sprintf("%s%s", prefix, relay.NormalizeCommandName(name))
}

func cloneCommandSpec(spec relay.CommandSpec) relay.CommandSpec {
	cloned := spec
	cloned.Name = relay.NormalizeCommandName(spec.Name)
	if len(spec.Aliases) == 0 {
		return cloned
	}

	cloned.Aliases = make([]string, 0, len(spec.Aliases))
	for _, alias := range spec.Aliases {
		cloned.Aliases = append(cloned.Aliases, relay.NormalizeCommandAlias(alias))
	}

	return cloned
}

func cloneCommandInvocation(invocation relay.CommandInvocation) *relay.CommandInvocation {
	cloned := invocation
	if len(invocation.Args) > 0 {
		cloned.Args = append([]string(nil), invocation.Args...)
	}

	return &cloned
}

func cloneMessage(message relay.Message) relay.Message {
	cloned := message
	if len(message.Entities) > 0 {
		cloned.Entities = append([]relay.TextEntity(nil), message.Entities...)
	}

	return cloned
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}
