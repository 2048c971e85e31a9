package module

import (
	"path/filepath"
	"strings"
)

// ResolveModule resolves a dotted include name (e.g. "a.b.c" or "..a.b") to
// a file-system path relative to fromDir, the directory of the including
// module, per §4.1/§6: a '.'-prefixed name walks up one directory with
// "../" per leading dot before the remaining dotted segments are joined
// and given a ".rr" extension.
func ResolveModule(fromDir, dotted string) string {
	return resolveDotted(fromDir, dotted, ".rr")
}

// ResolveLibrary resolves a "lib" declaration's dotted name to the shared
// object path it names, e.g. "x.y" -> "x/y.so".
func ResolveLibrary(fromDir, dotted string) string {
	return resolveDotted(fromDir, dotted, ".so")
}

func resolveDotted(fromDir, dotted, ext string) string {
	leading := 0
	for leading < len(dotted) && dotted[leading] == '.' {
		leading++
	}
	rest := dotted[leading:]
	dir := fromDir
	for i := 0; i < leading; i++ {
		dir = filepath.Join(dir, "..")
	}
	segs := strings.Split(rest, ".")
	parts := append([]string{dir}, segs...)
	return filepath.Join(parts...) + ext
}

// CanonicalPath returns the canonicalized real path used to key the
// included-module set, so that the same file is never parsed twice even if
// reached by two different relative routes.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
