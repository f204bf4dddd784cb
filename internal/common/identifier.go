// Copyright 2024 FAL Database Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// RootIdentifier is the identifier of the root folder of every storage.
const RootIdentifier = "/"

// IsFolderIdentifier reports whether id addresses a folder. Folder
// identifiers always end in "/", file identifiers never do.
func IsFolderIdentifier(id string) bool {
	return strings.HasSuffix(id, "/")
}

// CanonicalFolderIdentifier normalizes id into folder form: leading slash
// present, exactly one trailing slash.
func CanonicalFolderIdentifier(id string) string {
	id = ensureLeadingSlash(id)
	if id == RootIdentifier {
		return id
	}
	return strings.TrimRight(id, "/") + "/"
}

// CanonicalFileIdentifier normalizes id into file form: leading slash
// present, no trailing slash.
func CanonicalFileIdentifier(id string) string {
	id = ensureLeadingSlash(id)
	return strings.TrimRight(id, "/")
}

func ensureLeadingSlash(id string) string {
	if !strings.HasPrefix(id, "/") {
		return "/" + id
	}
	return id
}

// ParentFolderIdentifier strips the trailing path segment of id and
// re-appends "/". The parent of the root is the root itself.
func ParentFolderIdentifier(id string) string {
	trimmed := strings.TrimRight(ensureLeadingSlash(id), "/")
	if trimmed == "" {
		return RootIdentifier
	}
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[:idx+1]
}

// BaseName returns the last path segment of id, without any trailing slash.
// The root folder has an empty base name.
func BaseName(id string) string {
	trimmed := strings.TrimRight(id, "/")
	if trimmed == "" {
		return ""
	}
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

// Extension returns the file extension of id without the leading dot, or
// the empty string when there is none.
func Extension(id string) string {
	return strings.TrimPrefix(path.Ext(id), ".")
}

// Segments splits a possibly multi-part name like "a/b/c" into its non-empty
// path segments.
func Segments(name string) []string {
	var out []string
	for _, seg := range strings.Split(name, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// NameSanitizer normalizes a user-supplied name component before it is
// appended to a path. The exact character set is a concern of the
// surrounding system; implementations must at minimum never return a string
// containing "/".
type NameSanitizer func(name string) string

// SanitizeName is the default sanitizer: path separators are removed,
// control characters are dropped and surrounding whitespace is trimmed.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '/' || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ParseCombined splits a combined identifier of the form
// "<storage>:<identifier>" into its storage id and entry identifier.
func ParseCombined(combined string) (int64, string, error) {
	idx := strings.Index(combined, ":")
	if idx <= 0 {
		return 0, "", fmt.Errorf("%w: malformed combined identifier %q", ErrInvalidArgument, combined)
	}
	storageID, err := strconv.ParseInt(combined[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad storage id in %q", ErrInvalidArgument, combined)
	}
	identifier := combined[idx+1:]
	if !strings.HasPrefix(identifier, "/") {
		return 0, "", fmt.Errorf("%w: identifier must start with '/' in %q", ErrInvalidArgument, combined)
	}
	return storageID, identifier, nil
}

// FormatCombined builds a combined identifier from a storage id and an entry
// identifier.
func FormatCombined(storageID int64, identifier string) string {
	return strconv.FormatInt(storageID, 10) + ":" + ensureLeadingSlash(identifier)
}
