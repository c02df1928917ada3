package docstore

import (
	"fmt"
	"strings"
)

// Segments splits a slash separated path into its segments. Leading and
// trailing slashes are ignored; empty inner segments are rejected.
func Segments(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// CleanDocumentPath normalises path and checks that it names a document
// (an even number of segments).
func CleanDocumentPath(path string) (string, error) {
	segs, err := Segments(path)
	if err != nil {
		return "", err
	}
	if len(segs)%2 != 0 {
		return "", fmt.Errorf("%w: %q is a collection path, not a document path", ErrInvalidPath, path)
	}
	return strings.Join(segs, "/"), nil
}

// CleanCollectionPath normalises path and checks that it names a collection
// (an odd number of segments).
func CleanCollectionPath(path string) (string, error) {
	segs, err := Segments(path)
	if err != nil {
		return "", err
	}
	if len(segs)%2 != 1 {
		return "", fmt.Errorf("%w: %q is a document path, not a collection path", ErrInvalidPath, path)
	}
	return strings.Join(segs, "/"), nil
}

// SplitDocumentPath returns the parent collection path and the document id of
// a clean document path.
func SplitDocumentPath(docPath string) (parent, id string) {
	i := strings.LastIndex(docPath, "/")
	if i < 0 {
		return "", docPath
	}
	return docPath[:i], docPath[i+1:]
}

// CollectionID returns the last segment of a collection path.
func CollectionID(collectionPath string) string {
	i := strings.LastIndex(collectionPath, "/")
	return collectionPath[i+1:]
}

// Join concatenates path segments with slashes.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}
