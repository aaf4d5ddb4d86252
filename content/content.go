// Package content serves the localized reading screen: the supported
// languages, a search over their names, and the translated body text.
package content

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnsupportedLanguage is returned by Lookup for ids outside the catalog.
var ErrUnsupportedLanguage = errors.New("content: unsupported language")

// DefaultLanguage is selected when nothing else is.
const DefaultLanguage = "en"

// Language is one selectable reading language.
type Language struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

var catalog = []struct {
	id, name, body string
}{
	{"en", "English", "This is the content that will be displayed in the selected language."},
	{"hi", "Hindi", "यह वह सामग्री है जो चयनित भाषा में प्रदर्शित की जाएगी।"},
	{"fr", "French", "Ceci est le contenu qui sera affiché dans la langue sélectionnée."},
	{"de", "German", "Dies ist der Inhalt, der in der ausgewählten Sprache angezeigt wird."},
	{"mr", "Marathi", "ही ती सामग्री आहे जी निवडलेल्या भाषेत प्रदर्शित केली जाईल."},
	{"ru", "Russian", "Это контент, который будет отображаться на выбранном языке."},
}

// Languages returns the catalog in display order.
func Languages() []Language {
	out := make([]Language, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, Language{ID: c.id, Name: c.name, NativeName: nativeName(c.id)})
	}
	return out
}

func nativeName(id string) string {
	tag, err := language.Parse(id)
	if err != nil {
		return ""
	}
	return display.Self.Name(tag)
}

// SearchLanguages filters the catalog by a case-insensitive substring of the
// English name. An empty query returns everything.
func SearchLanguages(query string) []Language {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))

	var out []Language
	for _, l := range Languages() {
		if strings.Contains(fold.String(l.Name), needle) {
			out = append(out, l)
		}
	}
	return out
}

// Lookup resolves an id (or any BCP 47 tag whose base is in the catalog,
// such as "hi-IN") to a catalog language.
func Lookup(id string) (Language, error) {
	tag, err := language.Parse(strings.TrimSpace(id))
	if err != nil {
		return Language{}, ErrUnsupportedLanguage
	}
	base, _ := tag.Base()
	for _, l := range Languages() {
		if l.ID == base.String() {
			return l, nil
		}
	}
	return Language{}, ErrUnsupportedLanguage
}

// Translate returns the body text for id, English when id is unknown.
func Translate(id string) string {
	if l, err := Lookup(id); err == nil {
		for _, c := range catalog {
			if c.id == l.ID {
				return c.body
			}
		}
	}
	return catalog[0].body
}
