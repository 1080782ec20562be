package parser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer folds compatibility forms (full-width digits, roman numeral
// glyphs) and strips invisible format runes such as soft hyphens and
// zero-width joiners that PDF extractors leak into text.
var normalizer = transform.Chain(
	norm.NFKC,
	runes.Remove(runes.In(unicode.Cf)),
)

// glyphFixes repairs extraction artifacts that NFKC leaves alone:
// ligatures, smart punctuation, stray bullets.
var glyphFixes = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"−", "-", // minus sign
	" ", " ",
	"•", "-",
	"·", "-",
)

// eMMCSpelling consolidates the brand-name variants that appear after glyph
// substitution, e.g. "e•MMC" and "e-MMC", so section titles and running
// text key consistently.
var eMMCSpelling = regexp.MustCompile(`(?i)\be[\s.•·‧-]?MMC\b`)

// CleanText normalizes a run of extracted text. Line structure is preserved.
func CleanText(s string) string {
	out, _, err := transform.String(normalizer, s)
	if err != nil {
		out = s
	}
	out = glyphFixes.Replace(out)
	out = eMMCSpelling.ReplaceAllString(out, "eMMC")
	return out
}

// Page furniture: running headers/footers and watermarks that repeat on
// every page and carry no body content.
var furniturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^JEDEC Standard No\.`),
	regexp.MustCompile(`^Page \d+$`),
	regexp.MustCompile(`^-\s*\d+\s*-$`),
	regexp.MustCompile(`^\d{1,4}$`),
	regexp.MustCompile(`(?i)^downloaded by`),
	regexp.MustCompile(`(?i)licensed to .* on \d`),
	regexp.MustCompile(`(?i)^copyright (jedec|©)`),
}

// IsPageFurniture reports whether a line is a running header, footer,
// page number or watermark rather than body text.
func IsPageFurniture(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	for _, p := range furniturePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
