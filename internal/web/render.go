package web

import (
	"html"
	"html/template"
	"strings"

	"github.com/MrWong99/speakez/pkg/scoring"
)

// Funcs returns the template functions used by the UI.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"highlight": Highlight,
		"percent":   func(r scoring.Result) string { return r.Format() },
	}
}

// Highlight renders annotations as space-separated spans, green for matched
// words and red for missed ones. Words are HTML escaped.
func Highlight(anns []scoring.Annotation) template.HTML {
	var b strings.Builder
	for i, a := range anns {
		if i > 0 {
			b.WriteByte(' ')
		}
		class := "miss"
		if a.IsMatch {
			class = "match"
		}
		b.WriteString(`<span class="`)
		b.WriteString(class)
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(a.Word))
		b.WriteString(`</span>`)
	}
	return template.HTML(b.String()) //nolint:gosec // every word is escaped above
}
