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

package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/driver"
)

// Source is the capability interface a migration source backend implements:
// open/read/delete operations over folder and file identifiers. The engine
// depends only on this interface; the concrete backend is decided once at
// migration start.
type Source interface {
	// RootFolder returns the source's root folder identifier.
	RootFolder(ctx context.Context) (string, error)
	// FolderExists reports whether the folder identifier is accessible.
	FolderExists(ctx context.Context, folderID string) (bool, error)
	// ListFolders returns the identifiers of the direct subfolders.
	ListFolders(ctx context.Context, folderID string) ([]string, error)
	// ListFiles returns the identifiers of the files directly in the folder.
	ListFiles(ctx context.Context, folderID string) ([]string, error)
	// ReadFile materializes the file's bytes at a local path.
	ReadFile(ctx context.Context, fileID string) (string, error)
	// DeleteFile removes a migrated file from the source.
	DeleteFile(ctx context.Context, fileID string) error
	// DeleteFolder removes a migrated (now empty) folder from the source.
	DeleteFolder(ctx context.Context, folderID string) error
	// StorageID returns the source's storage partition when the source is
	// registry-backed; ok is false for backends like the local disk that
	// have no file-registry rows to repoint.
	StorageID() (int64, bool)
}

// SourceOptions carry the backend-specific wiring for OpenSource.
type SourceOptions struct {
	// BasePath is the root directory of a local source.
	BasePath string
	// Driver is the database driver of a database source.
	Driver *driver.Driver
}

// sourceFactories is the lookup table of source backends, keyed by kind.
var sourceFactories = map[string]func(SourceOptions) (Source, error){
	"local": func(opts SourceOptions) (Source, error) {
		if opts.BasePath == "" {
			return nil, fmt.Errorf("%w: local source needs a base path", common.ErrInvalidArgument)
		}
		return &LocalSource{base: opts.BasePath}, nil
	},
	"database": func(opts SourceOptions) (Source, error) {
		if opts.Driver == nil {
			return nil, fmt.Errorf("%w: database source needs a driver", common.ErrInvalidArgument)
		}
		return &DriverSource{d: opts.Driver}, nil
	},
}

// OpenSource resolves a source backend by kind.
func OpenSource(kind string, opts SourceOptions) (Source, error) {
	factory, ok := sourceFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source backend %q", common.ErrInvalidArgument, kind)
	}
	return factory(opts)
}

// --- Local disk source ---

// LocalSource reads a directory tree on the local disk. Identifiers use the
// same convention as the database driver: "/"-rooted, folders with a
// trailing slash.
type LocalSource struct {
	base string
}

// NewLocalSource creates a source over the given base directory.
func NewLocalSource(base string) *LocalSource {
	return &LocalSource{base: base}
}

func (s *LocalSource) localPath(id string) string {
	return filepath.Join(s.base, filepath.FromSlash(strings.TrimPrefix(id, "/")))
}

func (s *LocalSource) RootFolder(ctx context.Context) (string, error) {
	return common.RootIdentifier, nil
}

func (s *LocalSource) FolderExists(ctx context.Context, folderID string) (bool, error) {
	info, err := os.Stat(s.localPath(common.CanonicalFolderIdentifier(folderID)))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (s *LocalSource) list(folderID string, wantDir bool) ([]string, error) {
	folderID = common.CanonicalFolderIdentifier(folderID)
	dirEntries, err := os.ReadDir(s.localPath(folderID))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range dirEntries {
		if e.IsDir() != wantDir {
			continue
		}
		id := folderID + e.Name()
		if wantDir {
			id += "/"
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *LocalSource) ListFolders(ctx context.Context, folderID string) ([]string, error) {
	return s.list(folderID, true)
}

func (s *LocalSource) ListFiles(ctx context.Context, folderID string) ([]string, error) {
	return s.list(folderID, false)
}

// ReadFile returns the file's actual path: local files need no copy.
func (s *LocalSource) ReadFile(ctx context.Context, fileID string) (string, error) {
	path := s.localPath(fileID)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *LocalSource) DeleteFile(ctx context.Context, fileID string) error {
	return os.Remove(s.localPath(fileID))
}

func (s *LocalSource) DeleteFolder(ctx context.Context, folderID string) error {
	return os.Remove(s.localPath(common.CanonicalFolderIdentifier(folderID)))
}

func (s *LocalSource) StorageID() (int64, bool) {
	return 0, false
}

// --- Database driver source ---

// DriverSource adapts the database driver to the Source interface so
// migrations can run between two database storages.
type DriverSource struct {
	d *driver.Driver
}

// NewDriverSource creates a source over an existing database driver.
func NewDriverSource(d *driver.Driver) *DriverSource {
	return &DriverSource{d: d}
}

func (s *DriverSource) RootFolder(ctx context.Context) (string, error) {
	return s.d.RootFolder(ctx)
}

func (s *DriverSource) FolderExists(ctx context.Context, folderID string) (bool, error) {
	return s.d.FolderExists(ctx, folderID)
}

func (s *DriverSource) ListFolders(ctx context.Context, folderID string) ([]string, error) {
	return s.d.GetFoldersInFolder(ctx, folderID, driver.ListOptions{})
}

func (s *DriverSource) ListFiles(ctx context.Context, folderID string) ([]string, error) {
	return s.d.GetFilesInFolder(ctx, folderID, driver.ListOptions{})
}

func (s *DriverSource) ReadFile(ctx context.Context, fileID string) (string, error) {
	return s.d.GetFileForLocalProcessing(ctx, fileID)
}

func (s *DriverSource) DeleteFile(ctx context.Context, fileID string) error {
	ok, err := s.d.DeleteFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("deleting %q affected no rows", fileID)
	}
	return nil
}

func (s *DriverSource) DeleteFolder(ctx context.Context, folderID string) error {
	// Non-recursive on purpose: a subtree that still has content (for
	// example after a skipped collision) must survive on the source.
	ok, err := s.d.DeleteFolder(ctx, folderID, false)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("folder %q not empty, left on source", folderID)
	}
	return nil
}

func (s *DriverSource) StorageID() (int64, bool) {
	return s.d.StorageID(), true
}
