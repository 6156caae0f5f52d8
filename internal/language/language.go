package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliases covers codes and words seen in task requests that are not valid
// BCP 47 subtags. "mm" is the country-style code used for Myanmar content.
var aliases = map[string]string{
	"mm":         "my",
	"burmese":    "my",
	"myanmar":    "my",
	"english":    "en",
	"chinese":    "zh",
	"mandarin":   "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"thai":       "th",
	"vietnamese": "vi",
	"indonesian": "id",
	"spanish":    "es",
}

// Normalize converts a language code or word into its canonical base code
// (ISO 639-1 when one exists). Region and script subtags are dropped.
func Normalize(code string) (string, error) {
	tag, err := Parse(code)
	if err != nil {
		return "", err
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// Parse resolves a code or word into a language tag.
func Parse(code string) (language.Tag, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return language.Und, fmt.Errorf("language code is empty")
	}
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	code = strings.ReplaceAll(code, "_", "-")
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("unrecognized language %q: %w", code, err)
	}
	if _, confidence := tag.Base(); confidence == language.No {
		return language.Und, fmt.Errorf("unrecognized language %q", code)
	}
	return tag, nil
}

// DisplayName returns the English name of a language code, falling back to
// the uppercased input when the code is not recognized.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	tag, err := Parse(code)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	return name
}

// Matches reports whether two codes refer to the same base language.
func Matches(a, b string) bool {
	left, err := Normalize(a)
	if err != nil {
		return false
	}
	right, err := Normalize(b)
	if err != nil {
		return false
	}
	return left == right
}
