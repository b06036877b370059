package source

import "strings"

var permissiveMarkers = []string{
	"cc0",
	"cc by",
	"cc-by",
	"cc by-sa",
	"cc-by-sa",
	"public domain",
	"pd-",
}

// IsPermissive is the allow-list heuristic for reusable licenses, e.g.
// "CC BY-SA 4.0", "CC0 1.0", "Public domain".
func IsPermissive(license string) bool {
	l := strings.ToLower(strings.TrimSpace(license))
	if l == "" {
		return false
	}
	for _, m := range permissiveMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// IsCreativeCommons is the relaxed check: any CC marker or public domain.
func IsCreativeCommons(license string) bool {
	l := strings.ToLower(license)
	return strings.Contains(l, "cc") || strings.Contains(l, "public domain")
}
