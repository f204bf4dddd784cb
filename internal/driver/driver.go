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

// Package driver implements the virtual filesystem over the entries table.
//
// Files and folders are rows identified by slash-delimited path strings;
// folder membership is derived by string-prefix matching, not by parent
// pointers. Multi-row mutations (ancestor backfill, recursive delete,
// recursive move/copy) run inside one transaction, and the affected-row
// count of every mutating statement is the final authority: a mismatch
// rolls the whole transaction back even when prechecks passed.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/JostBaron/fal-database/internal/cache"
	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/storage"
)

// existenceCacheMaxEntries caps memory usage of the lookaside cache.
const existenceCacheMaxEntries = 100000

// Driver presents folder/file hierarchy operations over the entries table
// for one storage partition. It is stateless between calls except for the
// database handle and the list of local temp files pending cleanup.
type Driver struct {
	db        *storage.DB
	storageID int64
	exists    *cache.ExistenceCache
	sanitize  common.NameSanitizer
	tempDir   string
	log       *log.Entry

	mu        sync.Mutex
	tempFiles []string
}

// Option configures a Driver.
type Option func(*Driver)

// WithSanitizer replaces the default name sanitizer.
func WithSanitizer(s common.NameSanitizer) Option {
	return func(d *Driver) { d.sanitize = s }
}

// WithTempDir sets the directory for local content materializations.
func WithTempDir(dir string) Option {
	return func(d *Driver) { d.tempDir = dir }
}

// WithExistenceCache shares an existence cache between drivers. The cache
// is keyed by storage id, so sharing across partitions is safe.
func WithExistenceCache(c *cache.ExistenceCache) Option {
	return func(d *Driver) { d.exists = c }
}

// New creates a driver for one storage partition.
func New(db *storage.DB, storageID int64, opts ...Option) *Driver {
	d := &Driver{
		db:        db,
		storageID: storageID,
		exists:    cache.NewExistenceCache(existenceCacheMaxEntries),
		sanitize:  common.SanitizeName,
		tempDir:   os.TempDir(),
		log:       log.WithField("storage", storageID),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StorageID returns the storage partition this driver is bound to.
func (d *Driver) StorageID() int64 {
	return d.storageID
}

// DB returns the backing database handle.
func (d *Driver) DB() *storage.DB {
	return d.db
}

// ExistenceCache returns the lookaside cache so collaborators that mutate
// the entries table directly (the migration engine) can keep it in sync.
func (d *Driver) ExistenceCache() *cache.ExistenceCache {
	return d.exists
}

// Close releases local temp files created by content materialization.
// Best-effort: a file that cannot be removed is logged and leaked.
func (d *Driver) Close() error {
	d.mu.Lock()
	files := d.tempFiles
	d.tempFiles = nil
	d.mu.Unlock()

	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.log.WithError(err).WithField("path", path).Warn("failed to remove temp file")
		}
	}
	return nil
}

// --- Existence ---

// entryExists is the shared existence check: cache probe first, row count
// on miss, cache populated from the count.
func (d *Driver) entryExists(ctx context.Context, identifier string) (bool, error) {
	if d.exists.Has(d.storageID, identifier) {
		return d.exists.Get(d.storageID, identifier), nil
	}
	n, err := d.db.EntryCount(ctx, d.storageID, identifier)
	if err != nil {
		return false, err
	}
	exists := n > 0
	d.exists.Set(d.storageID, identifier, exists)
	return exists, nil
}

// FileExists reports whether a file row exists at the identifier. A
// trailing slash is stripped before checking.
func (d *Driver) FileExists(ctx context.Context, identifier string) (bool, error) {
	return d.entryExists(ctx, common.CanonicalFileIdentifier(identifier))
}

// FolderExists reports whether a folder row exists at the identifier. A
// missing trailing slash is appended before checking.
func (d *Driver) FolderExists(ctx context.Context, identifier string) (bool, error) {
	return d.entryExists(ctx, common.CanonicalFolderIdentifier(identifier))
}

// IsFolderEmpty reports whether the folder has no entries below it: true
// iff the strict-prefix row count (the folder row itself excluded) is zero.
func (d *Driver) IsFolderEmpty(ctx context.Context, identifier string) (bool, error) {
	identifier = common.CanonicalFolderIdentifier(identifier)
	n, err := d.db.CountByPrefix(ctx, d.storageID, identifier, true)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// RootFolder returns the root folder identifier, creating the root row for
// this storage if it does not exist yet.
func (d *Driver) RootFolder(ctx context.Context) (string, error) {
	exists, err := d.entryExists(ctx, common.RootIdentifier)
	if err != nil {
		return "", err
	}
	if exists {
		return common.RootIdentifier, nil
	}

	affected, err := d.db.InsertEntryWith(d.db.DB, ctx, &storage.EntryModel{
		EntryID: common.RootIdentifier,
		Storage: d.storageID,
	})
	if err != nil {
		return "", fmt.Errorf("creating root folder: %w", err)
	}
	if affected != 1 {
		return "", common.NewIdentifierError("rootFolder", common.RootIdentifier, common.ErrOperationFailed)
	}
	d.exists.Set(d.storageID, common.RootIdentifier, true)
	d.log.Debug("created root folder")
	return common.RootIdentifier, nil
}

// --- Folder creation ---

// CreateFolder creates a folder below parentID and returns its identifier.
// Non-recursive, name is a single segment; recursive, every segment of a
// multi-part name is created. Missing ancestors (the root included) are
// backfilled in the same transaction, and the insert count must match the
// number of missing rows or the whole transaction rolls back.
func (d *Driver) CreateFolder(ctx context.Context, name, parentID string, recursive bool) (string, error) {
	parentID = common.CanonicalFolderIdentifier(parentID)

	// A missing root is backfilled inside the transaction below; any other
	// missing parent is the caller's error.
	if parentID != common.RootIdentifier {
		parentExists, err := d.entryExists(ctx, parentID)
		if err != nil {
			return "", err
		}
		if !parentExists {
			return "", common.NewIdentifierError("createFolder", parentID, common.ErrNotFound)
		}
	}

	var segments []string
	if recursive {
		for _, seg := range common.Segments(name) {
			segments = append(segments, d.sanitize(seg))
		}
	} else {
		segments = []string{d.sanitize(name)}
	}
	for _, seg := range segments {
		if seg == "" {
			return "", common.NewIdentifierError("createFolder", name, common.ErrInvalidArgument)
		}
	}
	if len(segments) == 0 {
		return "", common.NewIdentifierError("createFolder", name, common.ErrInvalidArgument)
	}

	var target string
	var created []string
	err := d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		target = parentID
		created = created[:0]
		var missing []storage.EntryModel
		ensure := func(id string) error {
			n, err := d.db.EntryCountWith(tx, ctx, d.storageID, id)
			if err != nil {
				return err
			}
			if n == 0 {
				missing = append(missing, storage.EntryModel{
					EntryID: id,
					Storage: d.storageID,
				})
				created = append(created, id)
			}
			return nil
		}
		if parentID == common.RootIdentifier {
			if err := ensure(common.RootIdentifier); err != nil {
				return err
			}
		}
		for _, seg := range segments {
			target += seg + "/"
			if err := ensure(target); err != nil {
				return err
			}
		}
		if len(missing) == 0 {
			return nil
		}
		affected, err := d.db.InsertEntriesWith(tx, ctx, missing)
		if err != nil {
			return err
		}
		if affected != int64(len(missing)) {
			return common.NewIdentifierError("createFolder", target, common.ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	for _, id := range created {
		d.exists.Set(d.storageID, id, true)
	}
	d.log.WithField("identifier", target).Debug("created folder")
	return target, nil
}

// errFolderNotEmpty aborts a non-recursive delete from inside the
// transaction; it is mapped to a false return, not surfaced as an error.
var errFolderNotEmpty = errors.New("folder not empty")

// DeleteFolder removes a folder. It fails with NotFound when the folder
// does not exist. Without recursive, a non-empty folder makes the call
// return (false, nil) leaving every row untouched — a safe no-op, not an
// error. With recursive, every row prefixed by the identifier (itself
// included) is deleted in one transaction.
func (d *Driver) DeleteFolder(ctx context.Context, identifier string, recursive bool) (bool, error) {
	identifier = common.CanonicalFolderIdentifier(identifier)

	exists, err := d.entryExists(ctx, identifier)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, common.NewIdentifierError("deleteFolder", identifier, common.ErrNotFound)
	}

	var deleted []string
	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if !recursive {
			n, err := d.db.CountByPrefixWith(tx, ctx, d.storageID, identifier, true)
			if err != nil {
				return err
			}
			if n > 0 {
				return errFolderNotEmpty
			}
		}
		var err error
		deleted, err = d.db.SelectIdentifiersByPrefixWith(tx, ctx, d.storageID, identifier, false, false)
		if err != nil {
			return err
		}
		affected, err := d.db.DeleteByPrefixWith(tx, ctx, d.storageID, identifier)
		if err != nil {
			return err
		}
		if affected != int64(len(deleted)) {
			return common.NewIdentifierError("deleteFolder", identifier, common.ErrOperationFailed)
		}
		return nil
	})
	if errors.Is(err, errFolderNotEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, id := range deleted {
		d.exists.InvalidatePath(d.storageID, id)
	}
	d.log.WithFields(log.Fields{"identifier": identifier, "rows": len(deleted)}).Debug("deleted folder")
	return true, nil
}
