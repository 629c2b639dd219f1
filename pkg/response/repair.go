package response

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/width"
)

var (
	trailingCommaRE   = regexp.MustCompile(`,\s*([\]}])`)
	singleQuotedKeyRE = regexp.MustCompile(`(\{|,)\s*'([^']+)'\s*:`)
	bareKeyRE         = regexp.MustCompile(`(\{|,)\s*([\p{L}_][\p{L}\p{N}_]*)\s*:`)

	// Punctuation that width folding leaves alone.
	punctuationReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"【", "[", "】", "]",
	)
)

// Repair rewrites the usual generator mistakes into valid JSON. The steps run
// in a fixed order and applying Repair twice changes nothing further.
// Only punctuation is width-folded, so full-width digits, letters and spaces
// in narrative values survive. Trailing commas are stripped again after
// folding since a full-width comma only becomes one then.
func Repair(s string) string {
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	s = foldPunctuation(s)
	s = punctuationReplacer.Replace(s)
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	s = escapeControlCharsInStrings(s)
	s = singleQuotedKeyRE.ReplaceAllString(s, `$1"$2":`)
	s = bareKeyRE.ReplaceAllString(s, `$1"$2":`)
	return s
}

// foldPunctuation narrows full-width punctuation to ASCII. The transformer
// carries per-run state, so one is built per call.
func foldPunctuation(s string) string {
	return runes.If(runes.In(unicode.P), width.Fold, nil).String(s)
}

// escapeControlCharsInStrings escapes raw newlines, carriage returns and tabs
// that appear inside double-quoted spans.
func escapeControlCharsInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
