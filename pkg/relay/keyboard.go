package relay

import (
	"fmt"
	"strings"
)

// MaxActionBytes is the largest inline button action payload platforms accept.
const MaxActionBytes = 64

// KeyboardKind selects how a keyboard is presented.
type KeyboardKind string

const (
	// KeyboardKindReply replaces the user's input keyboard; pressing a button sends its label.
	KeyboardKindReply KeyboardKind = "reply"
	// KeyboardKindInline attaches buttons to a message; pressing a button emits a callback.
	KeyboardKindInline KeyboardKind = "inline"
)

// Button is one keyboard button.
type Button struct {
	Label string
	// Action is the callback payload for inline buttons. Reply buttons ignore it.
	Action string
}

// Keyboard is an immutable grid of buttons.
type Keyboard struct {
	Kind KeyboardKind
	Rows [][]Button
	// Resize asks clients to shrink reply keyboards to fit their buttons.
	Resize bool
}

// NewReplyKeyboard builds a resized reply keyboard.
func NewReplyKeyboard(rows ...[]Button) Keyboard {
	return Keyboard{Kind: KeyboardKindReply, Rows: cloneRows(rows), Resize: true}
}

// NewInlineKeyboard builds an inline keyboard.
func NewInlineKeyboard(rows ...[]Button) Keyboard {
	return Keyboard{Kind: KeyboardKindInline, Rows: cloneRows(rows)}
}

// Validate checks keyboard shape and inline action limits.
func (k Keyboard) Validate() error {
	if k.Kind != KeyboardKindReply && k.Kind != KeyboardKindInline {
		return fmt.Errorf("validate keyboard: unsupported kind %q", k.Kind)
	}
	if len(k.Rows) == 0 {
		return fmt.Errorf("validate keyboard: no rows")
	}
	for rowIndex, row := range k.Rows {
		if len(row) == 0 {
			return fmt.Errorf("validate keyboard: row %d is empty", rowIndex)
		}
		for buttonIndex, button := range row {
			if strings.TrimSpace(button.Label) == "" {
				return fmt.Errorf("validate keyboard: button [%d,%d] missing label", rowIndex, buttonIndex)
			}
			if k.Kind != KeyboardKindInline {
				continue
			}
			if button.Action == "" {
				return fmt.Errorf("validate keyboard: inline button %q missing action", button.Label)
			}
			if len(button.Action) > MaxActionBytes {
				return fmt.Errorf(
					"validate keyboard: inline button %q action exceeds %d bytes",
					button.Label,
					MaxActionBytes,
				)
			}
		}
	}

	return nil
}

// Clone returns a deep copy.
func (k Keyboard) Clone() Keyboard {
	k.Rows = cloneRows(k.Rows)

	return k
}

func cloneRows(rows [][]Button) [][]Button {
	if len(rows) == 0 {
		return nil
	}

	cloned := make([][]Button, 0, len(rows))
	for _, row := range rows {
		cloned = append(cloned, append([]Button(nil), row...))
	}

	return cloned
}
