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

// Package migrate moves whole folder subtrees from a source storage
// (possibly a different backend) into a storage backed by the database
// driver.
//
// The walk accumulates error messages instead of aborting: a failure in
// one file or subfolder never stops the scan of its siblings, only the
// eventual commit. Target-side writes happen in one transaction; the
// source is touched only after that transaction has durably committed, so
// a file is deleted from the source strictly after its target write is
// safe — at-least-once durable, never double-deleted.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/driver"
	"github.com/JostBaron/fal-database/internal/storage"
)

// maxErrorLength bounds a single accumulated message so a huge underlying
// error cannot flood the report.
const maxErrorLength = 500

// ExcludeFunc vetoes source entries by their path relative to the migrated
// folder. Returning true skips the entry (and, for folders, its subtree).
type ExcludeFunc func(relPath string, isDir bool) bool

// Result is the outcome of one migration run. A non-empty Errors list
// means the target transaction was rolled back and the source is
// untouched.
type Result struct {
	Errors          []string
	FilesMigrated   int
	FoldersMigrated int
}

// Failed reports whether the migration was rolled back.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Engine migrates folder subtrees into a database-backed target storage.
type Engine struct {
	target   *driver.Driver
	sanitize common.NameSanitizer
	exclude  ExcludeFunc
	log      *log.Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithExclude installs an exclude matcher.
func WithExclude(fn ExcludeFunc) Option {
	return func(e *Engine) { e.exclude = fn }
}

// WithSanitizer replaces the default name sanitizer.
func WithSanitizer(s common.NameSanitizer) Option {
	return func(e *Engine) { e.sanitize = s }
}

// New creates an engine migrating into the given target driver.
func New(target *driver.Driver, opts ...Option) *Engine {
	e := &Engine{
		target:   target,
		sanitize: common.SanitizeName,
		log:      log.WithField("component", "migrate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// accumulator is threaded through the recursive walk and returned; the
// engine itself holds no per-run state.
type accumulator struct {
	errors []string
	// sourceFiles and sourceFolders are the source identifiers pending
	// deletion once the target transaction has committed. Folders are
	// appended after their subtree, so deleting in order empties children
	// before parents.
	sourceFiles   []string
	sourceFolders []string
	// createdTarget are the target identifiers inserted during the walk,
	// used to update the existence cache after commit.
	createdTarget []string
	files         int
	folders       int
}

func (a *accumulator) fail(format string, args ...any) {
	a.errors = append(a.errors, truncateError(fmt.Sprintf(format, args...)))
}

func (a *accumulator) merge(other accumulator) {
	a.errors = append(a.errors, other.errors...)
	a.sourceFiles = append(a.sourceFiles, other.sourceFiles...)
	a.sourceFolders = append(a.sourceFolders, other.sourceFolders...)
	a.createdTarget = append(a.createdTarget, other.createdTarget...)
	a.files += other.files
	a.folders += other.folders
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength] + "…"
	}
	return msg
}

// Run migrates the source folder subtree into the target folder. Empty
// folder arguments default to the respective roots.
func (e *Engine) Run(ctx context.Context, src Source, sourceFolderID, targetFolderID string) Result {
	var result Result

	// Independent precondition failures are reported together; nothing is
	// mutated when any of them failed.
	srcFolder, err := e.resolveSourceFolder(ctx, src, sourceFolderID)
	if err != nil {
		result.Errors = append(result.Errors, truncateError(err.Error()))
	}
	dstFolder, err := e.resolveTargetFolder(ctx, targetFolderID)
	if err != nil {
		result.Errors = append(result.Errors, truncateError(err.Error()))
	}
	if result.Failed() {
		return result
	}

	db := e.target.DB()
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		result.Errors = append(result.Errors, truncateError(fmt.Sprintf("starting target transaction: %v", err)))
		return result
	}

	acc := e.walk(ctx, tx, src, srcFolder, dstFolder, "")
	result.Errors = append(result.Errors, acc.errors...)
	result.FilesMigrated = acc.files
	result.FoldersMigrated = acc.folders

	if result.Failed() {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.WithError(rbErr).Error("rollback failed")
		}
		result.Errors = append(result.Errors,
			"migration rolled back: no changes were applied to the target storage")
		return result
	}

	if err := tx.Commit(); err != nil {
		result.Errors = append(result.Errors, truncateError(fmt.Sprintf("committing target transaction: %v", err)))
		return result
	}

	for _, id := range acc.createdTarget {
		e.target.ExistenceCache().Set(e.target.StorageID(), id, true)
	}

	// The authoritative move committed on the target side; every source
	// deletion from here on is independently best-effort.
	for _, fileID := range acc.sourceFiles {
		if err := src.DeleteFile(ctx, fileID); err != nil {
			e.log.WithError(err).WithField("identifier", fileID).Warn("failed to delete migrated source file")
		}
	}
	for _, folderID := range acc.sourceFolders {
		if err := src.DeleteFolder(ctx, folderID); err != nil {
			e.log.WithError(err).WithField("identifier", folderID).Warn("failed to delete migrated source folder")
		}
	}

	e.log.WithFields(log.Fields{
		"files":   result.FilesMigrated,
		"folders": result.FoldersMigrated,
	}).Info("migration committed")
	return result
}

func (e *Engine) resolveSourceFolder(ctx context.Context, src Source, folderID string) (string, error) {
	if folderID == "" {
		root, err := src.RootFolder(ctx)
		if err != nil {
			return "", fmt.Errorf("resolving source root folder: %w", err)
		}
		folderID = root
	}
	folderID = common.CanonicalFolderIdentifier(folderID)
	exists, err := src.FolderExists(ctx, folderID)
	if err != nil {
		return "", fmt.Errorf("checking source folder %q: %w", folderID, err)
	}
	if !exists {
		return "", fmt.Errorf("source folder %q not found or not accessible", folderID)
	}
	return folderID, nil
}

func (e *Engine) resolveTargetFolder(ctx context.Context, folderID string) (string, error) {
	if folderID == "" {
		root, err := e.target.RootFolder(ctx)
		if err != nil {
			return "", fmt.Errorf("resolving target root folder: %w", err)
		}
		return root, nil
	}
	folderID = common.CanonicalFolderIdentifier(folderID)
	exists, err := e.target.FolderExists(ctx, folderID)
	if err != nil {
		return "", fmt.Errorf("checking target folder %q: %w", folderID, err)
	}
	if !exists {
		return "", fmt.Errorf("target folder %q not found", folderID)
	}
	return folderID, nil
}

// walk migrates one source folder level depth-first, returning everything
// it accumulated. All target writes go through tx.
func (e *Engine) walk(ctx context.Context, tx bun.Tx, src Source, srcFolderID, dstFolderID, relPath string) accumulator {
	var acc accumulator
	db := e.target.DB()
	storageID := e.target.StorageID()

	subfolders, err := src.ListFolders(ctx, srcFolderID)
	if err != nil {
		acc.fail("listing folders in %q: %v", srcFolderID, err)
		return acc
	}
	for _, sub := range subfolders {
		name := common.BaseName(sub)
		rel := path.Join(relPath, name)
		if e.exclude != nil && e.exclude(rel, true) {
			continue
		}
		sanitized := e.sanitize(name)
		if sanitized == "" {
			acc.fail("folder %q has no valid name after sanitizing", sub)
			continue
		}
		dstID := dstFolderID + sanitized + "/"

		n, err := db.EntryCountWith(tx, ctx, storageID, dstID)
		if err != nil {
			acc.fail("checking target folder %q: %v", dstID, err)
			continue
		}
		if n > 0 {
			// Collision: report and skip the subtree, its contents are
			// not migrated.
			acc.fail("target folder %q already exists, skipping %q", dstID, sub)
			continue
		}
		affected, err := db.InsertEntryWith(tx, ctx, &storage.EntryModel{
			EntryID: dstID,
			Storage: storageID,
		})
		if err != nil {
			acc.fail("creating target folder %q: %v", dstID, err)
			continue
		}
		if affected != 1 {
			acc.fail("creating target folder %q affected %d rows", dstID, affected)
			continue
		}
		acc.createdTarget = append(acc.createdTarget, dstID)
		acc.folders++

		acc.merge(e.walk(ctx, tx, src, sub, dstID, rel))
		// Recorded after the subtree so children are deleted first.
		acc.sourceFolders = append(acc.sourceFolders, sub)
	}

	files, err := src.ListFiles(ctx, srcFolderID)
	if err != nil {
		acc.fail("listing files in %q: %v", srcFolderID, err)
		return acc
	}
	for _, file := range files {
		name := common.BaseName(file)
		rel := path.Join(relPath, name)
		if e.exclude != nil && e.exclude(rel, false) {
			continue
		}
		newID, err := e.migrateFile(ctx, tx, src, file, dstFolderID, name)
		if err != nil {
			// Single-file failures do not abort the subtree.
			acc.fail("migrating file %q: %v", file, err)
			continue
		}
		acc.createdTarget = append(acc.createdTarget, newID)
		acc.sourceFiles = append(acc.sourceFiles, file)
		acc.files++
	}

	return acc
}

// migrateFile copies one file's bytes into the target table and repoints
// the file-registry row, both inside the migration transaction.
func (e *Engine) migrateFile(ctx context.Context, tx bun.Tx, src Source, fileID, dstFolderID, name string) (string, error) {
	db := e.target.DB()
	storageID := e.target.StorageID()

	sanitized := e.sanitize(name)
	if sanitized == "" {
		return "", fmt.Errorf("no valid name after sanitizing")
	}
	newID := dstFolderID + sanitized

	localPath, err := src.ReadFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("reading source file: %v", err)
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading local copy: %v", err)
	}
	if content == nil {
		content = []byte{}
	}

	affected, err := db.InsertEntryWith(tx, ctx, &storage.EntryModel{
		EntryID: newID,
		Storage: storageID,
		Data:    content,
	})
	if err != nil {
		return "", fmt.Errorf("inserting target row %q: %v", newID, err)
	}
	if affected != 1 {
		return "", fmt.Errorf("inserting target row %q affected %d rows", newID, affected)
	}

	// Repoint the file registry when the source is registry-backed.
	if srcStorageID, ok := src.StorageID(); ok {
		record, err := db.FindFileRecordByLocationWith(tx, ctx, srcStorageID, fileID)
		if err != nil {
			return "", fmt.Errorf("looking up file record for %q: %v", fileID, err)
		}
		if record != nil {
			affected, err := db.UpdateFileRecordLocationWith(tx, ctx, record.ID, storageID, newID,
				driver.IdentifierHash(newID), driver.IdentifierHash(common.ParentFolderIdentifier(newID)))
			if err != nil {
				return "", fmt.Errorf("updating file record %d: %v", record.ID, err)
			}
			if affected != 1 {
				return "", fmt.Errorf("updating file record %d affected %d rows", record.ID, affected)
			}
		}
	}

	return newID, nil
}
