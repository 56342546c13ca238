// Package pathguard validates archive record paths before anything is
// written to the restore root.
package pathguard

import (
	"path"
	"strings"

	"github.com/meigma/parcel/internal/parceltype"
)

// legacyKeep is how many trailing components are kept from legacy absolute
// paths.
const legacyKeep = 3

// Normalize converts a record path to the clean, slash-separated relative
// form used for writes. Backslashes become slashes. Legacy absolute paths
// (leading slash or drive letter) keep only their last three components.
// Paths that are empty, "." or that climb out of the root are rejected with
// a PathTraversalError.
func Normalize(p string) (string, error) {
	s := strings.ReplaceAll(p, `\`, "/")
	if isLegacyAbsolute(s) {
		s = trailing(s, legacyKeep)
	}

	clean := path.Clean(s)
	if clean == "." || clean == "/" || path.IsAbs(clean) {
		return "", &parceltype.PathTraversalError{Path: p}
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &parceltype.PathTraversalError{Path: p}
	}
	return clean, nil
}

func isLegacyAbsolute(s string) bool {
	if strings.HasPrefix(s, "/") {
		return true
	}
	return len(s) >= 2 && s[1] == ':' && isLetter(s[0])
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// trailing returns the last n non-empty components of a slash path.
func trailing(s string, n int) string {
	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) > 0 && len(kept[0]) == 2 && kept[0][1] == ':' {
		kept = kept[1:]
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "/")
}
