package relay

import (
	"fmt"
	"strings"
)

// CommandPrefix identifies the prefix introducing one command invocation.
type CommandPrefix string

const (
	// CommandPrefixOrdinary identifies ordinary command syntax.
	CommandPrefixOrdinary CommandPrefix = "/"
)

const maxCommandNameLength = 32

// Validate checks whether one command prefix is supported.
func (p CommandPrefix) Validate() error {
	switch p {
	case CommandPrefixOrdinary:
		return nil
	default:
		return fmt.Errorf("validate command prefix: unsupported prefix %q", p)
	}
}

// CommandCandidate is a parsed command-looking message before command-spec binding.
type CommandCandidate struct {
	// Prefix is the leading command prefix.
	Prefix CommandPrefix
	// Name is the normalized command name without prefix and mention suffix.
	Name string
	// Mention is the optional mention suffix from `<name>@<mention>`.
	Mention string
	// RawInput is the original untrimmed message text.
	RawInput string
	// Tokens stores command tail tokens after the command header token.
	Tokens []string
}

// CommandInvocation carries one validated command event payload.
type CommandInvocation struct {
	// Name is the normalized command name.
	Name string
	// Mention is the optional mention suffix from `<name>@<mention>`.
	Mention string
	// Value stores the command tail joined by single spaces.
	Value string
	// Args stores the command tail tokens.
	Args []string
	// Alias stores the keyboard label when the command came from a button alias.
	Alias string
	// SourceEventID identifies the inbound source event that produced this command.
	SourceEventID string
	// SourceEventKind identifies the inbound source event kind.
	SourceEventKind EventKind
	// RawInput stores the original inbound message text.
	RawInput string
}

// Validate checks command invocation contract fields.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if normalizeCommandName(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceEventID == "" {
		return fmt.Errorf("validate command invocation: missing source_event_id")
	}
	if c.SourceEventKind == "" {
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Prefix identifies which command prefix triggers this command.
	Prefix CommandPrefix
	// Name is the command name without prefix and mention suffix.
	Name string
	// Description describes command behavior for help text.
	Description string
	// Usage is an optional argument hint such as "<term>".
	Usage string
	// Aliases are exact message texts (keyboard labels) that trigger the command.
	Aliases []string
}

// Validate checks that the command declaration is coherent.
func (s CommandSpec) Validate() error {
	if err := s.Prefix.Validate(); err != nil {
		return fmt.Errorf("validate command spec %q: %w", s.Name, err)
	}
	name := normalizeCommandName(s.Name)
	if name == "" {
		return fmt.Errorf("validate command spec: missing name")
	}
	if !isValidCommandName(name) {
		return fmt.Errorf("validate command spec: invalid name %q", s.Name)
	}

	seenAliases := make(map[string]struct{}, len(s.Aliases))
	for index, alias := range s.Aliases {
		normalized := NormalizeCommandAlias(alias)
		if normalized == "" {
			return fmt.Errorf("validate command spec %s alias[%d]: empty alias", s.Name, index)
		}
		if strings.HasPrefix(normalized, string(s.Prefix)) {
			return fmt.Errorf("validate command spec %s alias[%d]: alias must not start with %q", s.Name, index, s.Prefix)
		}
		if _, exists := seenAliases[normalized]; exists {
			return fmt.Errorf("validate command spec %s: duplicate alias %q", s.Name, alias)
		}
		seenAliases[normalized] = struct{}{}
	}

	return nil
}

// ParseCommandCandidate parses one input text into a command candidate.
//
// matched is false when text does not look like a command. When matched is true,
// candidate fields are populated as much as possible and err reports syntax
// issues such as a missing or malformed command name.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return candidate, false, nil
	}
	header := fields[0]
	if !strings.HasPrefix(header, string(CommandPrefixOrdinary)) {
		return candidate, false, nil
	}
	candidate.Prefix = CommandPrefixOrdinary

	name, mention := splitCommandHeader(header[len(CommandPrefixOrdinary):])
	candidate.Name = normalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	if len(fields) > 1 {
		candidate.Tokens = append([]string(nil), fields[1:]...)
	}
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}
	if !isValidCommandName(candidate.Name) {
		return candidate, true, fmt.Errorf("parse command candidate: invalid command name %q", name)
	}

	return candidate, true, nil
}

// BindCommand validates one parsed candidate against one command spec.
//
// sourceEvent must identify the inbound event that produced this command.
func BindCommand(
	candidate CommandCandidate,
	spec CommandSpec,
	sourceEvent *Event,
) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}
	if candidate.Prefix != spec.Prefix {
		return CommandInvocation{}, fmt.Errorf(
			"bind command %s: prefix mismatch, got %q want %q",
			spec.Name,
			candidate.Prefix,
			spec.Prefix,
		)
	}

	specName := normalizeCommandName(spec.Name)
	if normalizeCommandName(candidate.Name) != specName {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", spec.Name, candidate.Name)
	}

	invocation := CommandInvocation{
		Name:            specName,
		Mention:         candidate.Mention,
		Value:           strings.Join(candidate.Tokens, " "),
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        candidate.RawInput,
	}
	if len(candidate.Tokens) > 0 {
		invocation.Args = append([]string(nil), candidate.Tokens...)
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

// BindAlias builds the invocation for a message whose whole text is a command alias.
func BindAlias(alias string, spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind alias: nil source event")
	}

	invocation := CommandInvocation{
		Name:            normalizeCommandName(spec.Name),
		Alias:           NormalizeCommandAlias(alias),
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        alias,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind alias %q: %w", alias, err)
	}

	return invocation, nil
}

// NormalizeCommandAlias trims alias text. Aliases are matched case-sensitively.
func NormalizeCommandAlias(value string) string {
	return strings.TrimSpace(value)
}

// NormalizeCommandName lower-cases and trims a command name.
func NormalizeCommandName(value string) string {
	return normalizeCommandName(value)
}

func splitCommandHeader(token string) (name string, mention string) {
	if token == "" {
		return "", ""
	}
	separator := strings.Index(token, "@")
	if separator < 0 {
		return token, ""
	}

	return token[:separator], token[separator+1:]
}

func isValidCommandName(name string) bool {
	if name == "" || len(name) > maxCommandNameLength {
		return false
	}
	for _, char := range name {
		switch {
		case char >= 'a' && char <= 'z':
		case char >= '0' && char <= '9':
		case char == '_':
		default:
			return false
		}
	}

	return true
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
