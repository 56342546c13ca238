package fileops

import (
	"runtime"
	"strings"
)

const globMeta = `*?[`

// HasGlobMeta reports whether p contains glob metacharacters.
func HasGlobMeta(p string) bool {
	return strings.ContainsAny(p, globMeta)
}

// EscapeGlob quotes glob metacharacters in a literal path. Windows globs
// have no escape character, so p is returned unchanged there.
func EscapeGlob(p string) string {
	if runtime.GOOS == "windows" || !HasGlobMeta(p) {
		return p
	}
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(globMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
