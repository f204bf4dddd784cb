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

package driver

import (
	"context"
	"strings"

	"github.com/gobwas/glob"

	"github.com/JostBaron/fal-database/internal/common"
)

// EntryFilter vetoes entries during listing. It receives the entry's base
// name and full identifier and keeps the entry only when it returns true.
type EntryFilter func(name, identifier string) bool

// GlobFilter builds an EntryFilter matching base names against a glob
// pattern.
func GlobFilter(pattern string) (EntryFilter, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, common.NewIdentifierError("globFilter", pattern,
			common.ErrInvalidArgument)
	}
	return func(name, _ string) bool {
		return g.Match(name)
	}, nil
}

// ListOptions controls the listing traversal shared by all listing
// operations.
type ListOptions struct {
	// Offset and Limit paginate the filtered result. Limit 0 means
	// unlimited.
	Offset int
	Limit  int
	// Descending flips the lexicographic identifier ordering.
	Descending bool
	// Recursive includes the whole subtree; otherwise only direct children
	// survive (entries whose remaining path segment contains no internal
	// slash).
	Recursive bool
	// Filters is a chain of predicates, each of which can veto an entry.
	Filters []EntryFilter
}

// isDirectChild reports whether identifier is a direct child of folderID:
// after stripping the folder prefix, the remainder contains no internal
// slash (a trailing slash marking a folder does not count).
func isDirectChild(folderID, identifier string) bool {
	rest := strings.TrimPrefix(identifier, folderID)
	rest = strings.TrimSuffix(rest, "/")
	return !strings.Contains(rest, "/")
}

// listIdentifiers is the shared traversal: every row prefixed by the folder
// identifier (the folder itself excluded), ordered by identifier, with the
// recursion filter, the caller's filter chain and pagination applied in
// that order.
func (d *Driver) listIdentifiers(ctx context.Context, folderID string, opts ListOptions) ([]string, error) {
	folderID = common.CanonicalFolderIdentifier(folderID)
	exists, err := d.entryExists(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.NewIdentifierError("listFolder", folderID, common.ErrNotFound)
	}

	ids, err := d.db.SelectIdentifiersByPrefix(ctx, d.storageID, folderID, true, opts.Descending)
	if err != nil {
		return nil, err
	}

	filtered := ids[:0]
outer:
	for _, id := range ids {
		if !opts.Recursive && !isDirectChild(folderID, id) {
			continue
		}
		for _, filter := range opts.Filters {
			if !filter(common.BaseName(id), id) {
				continue outer
			}
		}
		filtered = append(filtered, id)
	}

	if opts.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// GetEntriesInFolder lists the identifiers of all entries in a folder.
func (d *Driver) GetEntriesInFolder(ctx context.Context, folderID string, opts ListOptions) ([]string, error) {
	return d.listIdentifiers(ctx, folderID, opts)
}

// GetFilesInFolder lists the file identifiers in a folder. The file-kind
// check joins the filter chain so pagination counts files only.
func (d *Driver) GetFilesInFolder(ctx context.Context, folderID string, opts ListOptions) ([]string, error) {
	opts.Filters = append([]EntryFilter{func(_, identifier string) bool {
		return !common.IsFolderIdentifier(identifier)
	}}, opts.Filters...)
	return d.listIdentifiers(ctx, folderID, opts)
}

// GetFoldersInFolder lists the folder identifiers in a folder.
func (d *Driver) GetFoldersInFolder(ctx context.Context, folderID string, opts ListOptions) ([]string, error) {
	opts.Filters = append([]EntryFilter{func(_, identifier string) bool {
		return common.IsFolderIdentifier(identifier)
	}}, opts.Filters...)
	return d.listIdentifiers(ctx, folderID, opts)
}

// CountFilesInFolder counts the files in a folder.
func (d *Driver) CountFilesInFolder(ctx context.Context, folderID string, recursive bool, filters ...EntryFilter) (int, error) {
	files, err := d.GetFilesInFolder(ctx, folderID, ListOptions{Recursive: recursive, Filters: filters})
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// CountFoldersInFolder counts the subfolders of a folder.
func (d *Driver) CountFoldersInFolder(ctx context.Context, folderID string, recursive bool, filters ...EntryFilter) (int, error) {
	folders, err := d.GetFoldersInFolder(ctx, folderID, ListOptions{Recursive: recursive, Filters: filters})
	if err != nil {
		return 0, err
	}
	return len(folders), nil
}
