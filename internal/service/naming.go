package service

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// GenerateUniqueName returns a random UUID carrying the extension of
// originalName, e.g. "photo.PNG" -> "3f1c...e9.PNG". Nothing else of the
// original name survives. Leading dots do not start an extension, so
// ".env" yields a bare token while ".config.json" keeps ".json".
func GenerateUniqueName(originalName string) string {
	// Browsers on Windows may send a full path.
	base := originalName[strings.LastIndexAny(originalName, `/\`)+1:]
	return uuid.NewString() + path.Ext(strings.TrimLeft(base, "."))
}

// BuildPath prefixes name with the normalized folder. Empty segments are
// dropped, so "a//b/", "/a/b" and "a/b" all yield "a/b/<name>".
func BuildPath(name, folder string) string {
	if normalized := NormalizeFolder(folder); normalized != "" {
		return normalized + "/" + name
	}
	return name
}

// NormalizeFolder splits folder on "/", discards empty segments and rejoins.
func NormalizeFolder(folder string) string {
	segments := strings.FieldsFunc(folder, func(r rune) bool { return r == '/' })
	return strings.Join(segments, "/")
}
