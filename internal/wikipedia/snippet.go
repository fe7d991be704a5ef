package wikipedia

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var snippetPolicy = bluemonday.StrictPolicy()

// plainSnippet strips search highlight markup and entities from snippet.
func plainSnippet(snippet string) string {
	text := html.UnescapeString(snippetPolicy.Sanitize(snippet))

	return strings.Join(strings.Fields(text), " ")
}
