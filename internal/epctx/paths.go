package epctx

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveExternalRef validates a relative context-binary reference and
// resolves it against the directory containing the referencing model.
//
// The contract is platform-independent and deliberately conservative:
// absolute references (POSIX, Windows drive or UNC) are rejected, and any
// reference containing a ".." parent segment is rejected textually, even
// when the joined path would not currently escape modelDir. The function
// is pure; existence is the caller's concern.
func ResolveExternalRef(modelDir, ref string) (string, error) {
	if ref == "" {
		return "", ErrEmptyCachePath
	}
	if isAbsRef(ref) {
		return "", fmt.Errorf("%w: %q is absolute, external references must be relative to the model directory", ErrUnsafePath, ref)
	}
	if strings.Contains(ref, "..") {
		return "", fmt.Errorf("%w: %q contains '..', references must not point outside the model directory", ErrUnsafePath, ref)
	}
	return filepath.Join(modelDir, filepath.FromSlash(ref)), nil
}

// isAbsRef recognizes absolute references for every platform the cache
// model may have been produced on, not just the current one.
func isAbsRef(ref string) bool {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "\\") {
		return true
	}
	// Windows drive letter, e.g. "C:\x" or "C:/x".
	if len(ref) >= 2 && ref[1] == ':' {
		c := ref[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return filepath.IsAbs(ref)
}

// ContextBinaryPath derives the external cache file for a context model:
// the model path's stem plus the partition name plus ".bin". When the
// partition name embeds the backend source tag it is stripped first, so
// the cache keeps a stable human-readable filename. Returns the full path
// and the bare filename stored in the node attribute.
func ContextBinaryPath(modelPath, partitionName, source string) (path, name string) {
	stem := modelPath
	if ext := filepath.Ext(modelPath); ext != "" {
		stem = strings.TrimSuffix(modelPath, ext)
	}
	partition := partitionName
	if source != "" {
		partition = strings.Replace(partition, source, "", 1)
	}
	path = stem + partition + ".bin"
	return path, filepath.Base(path)
}
