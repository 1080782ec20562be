package structure

import (
	"path/filepath"
	"regexp"
	"strings"
)

// JEDEC filenames carry the revision in the document code, e.g.
// JESD84-B51.pdf is revision 5.1. The letter is the series, the first
// digit the major version, the rest the minor.
var jedecCodeRe = regexp.MustCompile(`(?i)JESD84-[AB](\d)(\d+)`)

// VersionFromPath derives the standard revision from the source filename.
// Unrecognized names fall back to the bare file stem so the version field
// is never empty.
func VersionFromPath(path string) string {
	base := filepath.Base(path)
	if m := jedecCodeRe.FindStringSubmatch(base); m != nil {
		return m[1] + "." + m[2]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem
}
