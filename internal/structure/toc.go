package structure

import (
	"errors"
	"regexp"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
)

// Entry is one table-of-contents triple: heading level, title, target page.
// Entries arrive physically ordered.
type Entry struct {
	Level  int
	Number string // dotted section number, or "Annex A" style
	Title  string
	Page   int
}

// ErrNoTOC reports that no table of contents could be recovered. Callers
// treat it as advisory: the pipeline degrades to a single root section.
var ErrNoTOC = errors.New("no table of contents found")

// The document's outline dictionary carries titles but no page targets in
// this stack, so entries are recovered from the printed contents pages:
// dot-leader lines of the form "6.10.4  Erase ......... 127".
var (
	tocNumberedRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.+?)[\s.]{4,}(\d{1,4})$`)
	tocAnnexRe    = regexp.MustCompile(`^(Annex\s+[A-Z])\b\s*(.*?)[\s.]{4,}(\d{1,4})$`)
	// Fallback for contents lines whose leader dots were lost in
	// extraction; requires a letter in the title to avoid eating trailing
	// numbers out of ordinary headings.
	tocBareRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.*[A-Za-z].*?)\s+(\d{1,4})$`)

	contentsHeadingRe = regexp.MustCompile(`(?i)^(table of )?contents$`)
)

// How far into the document to look for the contents heading, and how many
// consecutive pages one contents section may span.
const (
	contentsScanLimit  = 40
	tocRunLimit        = 15
	tocMinLinesPerPage = 3
)

// RecoverEntries parses the printed contents pages and returns the entry
// list (with target pages calibrated to physical page numbers) plus the
// physical pages the contents itself occupies. Returns ErrNoTOC when the
// document has no recognizable contents section.
func RecoverEntries(r parser.PageReader) ([]Entry, []int, error) {
	pageCount := r.PageCount()
	start := findContentsPage(r, pageCount)
	if start == 0 {
		return nil, nil, ErrNoTOC
	}

	var entries []Entry
	var tocPages []int
	for p := start; p <= pageCount && p < start+tocRunLimit; p++ {
		found := parseContentsPage(r, p, pageCount)
		if len(found) < tocMinLinesPerPage && p != start {
			break
		}
		if len(found) == 0 && p == start {
			// The heading page itself may hold only the word "Contents";
			// keep scanning.
			tocPages = append(tocPages, p)
			continue
		}
		entries = append(entries, found...)
		tocPages = append(tocPages, p)
	}
	if len(entries) == 0 {
		return nil, nil, ErrNoTOC
	}

	offset := calibrateOffset(r, entries, tocPages[len(tocPages)-1], pageCount)
	if offset != 0 {
		for i := range entries {
			entries[i].Page += offset
		}
	}

	// Clamp entries that point outside the document after calibration.
	valid := entries[:0]
	for _, e := range entries {
		if e.Page >= 1 && e.Page <= pageCount {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return nil, nil, ErrNoTOC
	}
	return valid, tocPages, nil
}

// findContentsPage scans the front of the document for a lone
// "Contents" heading line.
func findContentsPage(r parser.PageReader, pageCount int) int {
	limit := min(pageCount, contentsScanLimit)
	for p := 1; p <= limit; p++ {
		for _, line := range pageLines(r, p) {
			if contentsHeadingRe.MatchString(strings.TrimSpace(line)) {
				return p
			}
		}
	}
	return 0
}

// parseContentsPage extracts the entry lines of one contents page.
func parseContentsPage(r parser.PageReader, p, pageCount int) []Entry {
	var entries []Entry
	for _, line := range pageLines(r, p) {
		if e, ok := ParseContentsLine(line, pageCount); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// ParseContentsLine parses a single printed contents line. The page bound
// rejects lines whose trailing number cannot be a page.
func ParseContentsLine(line string, pageCount int) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}

	if m := tocAnnexRe.FindStringSubmatch(line); m != nil {
		page := atoiBounded(m[3], pageCount)
		if page == 0 {
			return Entry{}, false
		}
		return Entry{
			Level:  1,
			Number: normalizeSpace(m[1]),
			Title:  strings.TrimSpace(m[2]),
			Page:   page,
		}, true
	}

	m := tocNumberedRe.FindStringSubmatch(line)
	if m == nil {
		m = tocBareRe.FindStringSubmatch(line)
	}
	if m == nil {
		return Entry{}, false
	}
	page := atoiBounded(m[3], pageCount)
	if page == 0 {
		return Entry{}, false
	}
	number := m[1]
	return Entry{
		Level:  strings.Count(number, ".") + 1,
		Number: number,
		Title:  strings.TrimRight(strings.TrimSpace(m[2]), " ."),
		Page:   page,
	}, true
}

// calibrateOffset resolves the difference between printed page labels and
// physical page indices: front matter is usually numbered separately, so
// the body's printed "page 1" sits several physical pages in. The offset is
// found by locating the first entry's heading in the pages after the
// contents run.
func calibrateOffset(r parser.PageReader, entries []Entry, tocEnd, pageCount int) int {
	first := entries[0]
	want := headingKey(first.Number, first.Title)
	limit := min(pageCount, tocEnd+20)
	for p := tocEnd + 1; p <= limit; p++ {
		for _, line := range pageLines(r, p) {
			if strings.HasPrefix(headingKey("", line), want) {
				return p - first.Page
			}
		}
	}
	return 0
}

// headingKey normalizes a heading for prefix comparison: number and the
// first few title words, case-folded, single-spaced.
func headingKey(number, title string) string {
	s := strings.TrimSpace(number + " " + title)
	s = normalizeSpace(strings.ToLower(s))
	const keyLen = 24
	if len(s) > keyLen {
		s = s[:keyLen]
	}
	return s
}

// pageLines returns the page's text lines in reading order. Pages that
// cannot be read yield nothing; the caller treats that as an empty page.
func pageLines(r parser.PageReader, p int) []string {
	pm, err := r.ReadPage(p)
	if err != nil || pm == nil {
		return nil
	}
	var lines []string
	for _, b := range pm.Blocks {
		for _, l := range strings.Split(b.Text, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
	}
	return lines
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func atoiBounded(s string, limit int) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > limit {
		return 0
	}
	return n
}
