package relay

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextEntityType identifies one formatting range kind.
type TextEntityType string

const (
	TextEntityTypeBold    TextEntityType = "bold"
	TextEntityTypeItalic  TextEntityType = "italic"
	TextEntityTypeCode    TextEntityType = "code"
	TextEntityTypeURL     TextEntityType = "url"
	TextEntityTypeTextURL TextEntityType = "text_url"
)

// TextEntity decorates a range of message text.
//
// Offset and Length count Unicode code points, not bytes. Drivers convert
// ranges into platform units.
type TextEntity struct {
	Type   TextEntityType
	Offset int
	Length int
	// URL is the link target for text_url entities.
	URL string
}

// ValidateTextEntities checks that every entity fits inside text and is well formed.
func ValidateTextEntities(text string, entities []TextEntity) error {
	if len(entities) == 0 {
		return nil
	}

	runeCount := utf8.RuneCountInString(text)
	for index, entity := range entities {
		if entity.Offset < 0 || entity.Length <= 0 || entity.Offset+entity.Length > runeCount {
			return fmt.Errorf(
				"entity[%d] %s: range [%d,%d) outside text of %d runes",
				index,
				entity.Type,
				entity.Offset,
				entity.Offset+entity.Length,
				runeCount,
			)
		}
		switch entity.Type {
		case TextEntityTypeBold, TextEntityTypeItalic, TextEntityTypeCode, TextEntityTypeURL:
		case TextEntityTypeTextURL:
			if strings.TrimSpace(entity.URL) == "" {
				return fmt.Errorf("entity[%d] text_url: missing url", index)
			}
		default:
			return fmt.Errorf("entity[%d]: unsupported type %q", index, entity.Type)
		}
	}

	return nil
}

// TextBuilder assembles message text and its formatting entities in one pass.
//
// The zero value is ready to use.
type TextBuilder struct {
	text     strings.Builder
	runes    int
	entities []TextEntity
}

// Plain appends unformatted text.
func (b *TextBuilder) Plain(value string) *TextBuilder {
	b.text.WriteString(value)
	b.runes += utf8.RuneCountInString(value)

	return b
}

// Bold appends bold text.
func (b *TextBuilder) Bold(value string) *TextBuilder {
	return b.styled(value, TextEntity{Type: TextEntityTypeBold})
}

// Italic appends italic text.
func (b *TextBuilder) Italic(value string) *TextBuilder {
	return b.styled(value, TextEntity{Type: TextEntityTypeItalic})
}

// Code appends monospace text.
func (b *TextBuilder) Code(value string) *TextBuilder {
	return b.styled(value, TextEntity{Type: TextEntityTypeCode})
}

// Link appends label linked to url. An empty url degrades to plain text.
func (b *TextBuilder) Link(label string, url string) *TextBuilder {
	if strings.TrimSpace(url) == "" {
		return b.Plain(label)
	}

	return b.styled(label, TextEntity{Type: TextEntityTypeTextURL, URL: url})
}

// Len returns the current text length in runes.
func (b *TextBuilder) Len() int {
	return b.runes
}

// Text returns the assembled text.
func (b *TextBuilder) Text() string {
	return b.text.String()
}

// Entities returns a copy of the collected entities.
func (b *TextBuilder) Entities() []TextEntity {
	if len(b.entities) == 0 {
		return nil
	}

	return append([]TextEntity(nil), b.entities...)
}

func (b *TextBuilder) styled(value string, entity TextEntity) *TextBuilder {
	length := utf8.RuneCountInString(value)
	if length == 0 {
		return b
	}

	entity.Offset = b.runes
	entity.Length = length
	b.entities = append(b.entities, entity)

	return b.Plain(value)
}
