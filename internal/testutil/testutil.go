// Package testutil provides helpers shared by package tests.
package testutil

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTree creates files under dir. Keys are slash-separated relative
// paths; a key ending in "/" creates an empty directory.
func WriteTree(tb testing.TB, dir string, files map[string][]byte) {
	tb.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			require.NoError(tb, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(tb, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(tb, os.WriteFile(p, content, 0o644))
	}
}

// ReadTree returns every regular file under dir keyed by slash path, plus
// the sorted list of directories.
func ReadTree(tb testing.TB, dir string) (files map[string][]byte, dirs []string) {
	tb.Helper()
	files = make(map[string][]byte)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			dirs = append(dirs, rel)
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[rel] = data
		return nil
	})
	require.NoError(tb, err)
	sort.Strings(dirs)
	return files, dirs
}

// Pattern returns n bytes of a repeating, mildly varied pattern.
func Pattern(seed string, n int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		buf.WriteString(seed)
		buf.WriteByte(byte('a' + i%26))
	}
	return buf.Bytes()[:n]
}
