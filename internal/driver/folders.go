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

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/storage"
)

// newFolderPrefix validates the target folder and computes the destination
// folder identifier targetFolderID + sanitize(name) + "/", checking for
// collisions.
func (d *Driver) newFolderPrefix(ctx context.Context, op, targetFolderID, name string) (string, error) {
	targetFolderID = common.CanonicalFolderIdentifier(targetFolderID)
	exists, err := d.entryExists(ctx, targetFolderID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", common.NewIdentifierError(op, targetFolderID, common.ErrNotFound)
	}

	sanitized := d.sanitize(name)
	if sanitized == "" {
		return "", common.NewIdentifierError(op, name, common.ErrInvalidArgument)
	}
	newPrefix := targetFolderID + sanitized + "/"
	occupied, err := d.entryExists(ctx, newPrefix)
	if err != nil {
		return "", err
	}
	if occupied {
		return "", common.NewIdentifierError(op, newPrefix, common.ErrConflict)
	}
	return newPrefix, nil
}

// MoveFolderWithinStorage moves a folder subtree below the target folder
// under the given name. Every descendant identifier is recomputed by
// replacing the source prefix and each row is updated individually inside
// one transaction; a single update that does not affect exactly one row
// aborts the whole move so no half-moved tree is ever visible. Returns the
// old-identifier to new-identifier mapping for every moved row.
func (d *Driver) MoveFolderWithinStorage(ctx context.Context, sourceFolderID, targetFolderID, name string) (map[string]string, error) {
	sourceFolderID = common.CanonicalFolderIdentifier(sourceFolderID)
	exists, err := d.entryExists(ctx, sourceFolderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.NewIdentifierError("moveFolder", sourceFolderID, common.ErrNotFound)
	}
	newPrefix, err := d.newFolderPrefix(ctx, "moveFolder", targetFolderID, name)
	if err != nil {
		return nil, err
	}

	moved := make(map[string]string)
	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		clear(moved)
		oldIDs, err := d.db.SelectIdentifiersByPrefixWith(tx, ctx, d.storageID, sourceFolderID, false, false)
		if err != nil {
			return err
		}
		for _, oldID := range oldIDs {
			newID := newPrefix + strings.TrimPrefix(oldID, sourceFolderID)
			affected, err := d.db.UpdateEntryIDWith(tx, ctx, d.storageID, oldID, newID)
			if err != nil {
				return err
			}
			if affected != 1 {
				return common.NewIdentifierError("moveFolder", oldID, common.ErrOperationFailed)
			}
			moved[oldID] = newID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for oldID, newID := range moved {
		d.exists.Set(d.storageID, oldID, false)
		d.exists.Set(d.storageID, newID, true)
	}
	d.log.WithFields(log.Fields{"from": sourceFolderID, "to": newPrefix, "rows": len(moved)}).Debug("moved folder")
	return moved, nil
}

// RenameFolder gives a folder a new name inside its containing folder,
// rewriting every descendant identifier. Returns the old-identifier to
// new-identifier mapping.
func (d *Driver) RenameFolder(ctx context.Context, identifier, newName string) (map[string]string, error) {
	identifier = common.CanonicalFolderIdentifier(identifier)
	sanitized := d.sanitize(newName)
	if sanitized == "" {
		return nil, common.NewIdentifierError("renameFolder", newName, common.ErrInvalidArgument)
	}
	// Renaming to the current name is a no-op.
	if common.ParentFolderIdentifier(identifier)+sanitized+"/" == identifier {
		out := map[string]string{identifier: identifier}
		return out, nil
	}
	return d.MoveFolderWithinStorage(ctx, identifier, common.ParentFolderIdentifier(identifier), newName)
}

// CopyFolderWithinStorage copies a folder subtree below the target folder
// under the given name and returns the new folder identifier. The target
// folder row is created first, then every descendant row (blobs included)
// is selected and re-inserted under the substituted prefix in one batched
// insert. A mismatch between selected and inserted row counts rolls the
// whole copy back and is reported as ok=false, not as an error — contrast
// with move.
func (d *Driver) CopyFolderWithinStorage(ctx context.Context, sourceFolderID, targetFolderID, name string) (string, bool, error) {
	sourceFolderID = common.CanonicalFolderIdentifier(sourceFolderID)
	exists, err := d.entryExists(ctx, sourceFolderID)
	if err != nil {
		return "", false, err
	}
	if !exists {
		return "", false, common.NewIdentifierError("copyFolder", sourceFolderID, common.ErrNotFound)
	}
	newPrefix, err := d.newFolderPrefix(ctx, "copyFolder", targetFolderID, name)
	if err != nil {
		return "", false, err
	}

	countMismatch := false
	var created []string
	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		countMismatch = false
		created = created[:0]

		// Target folder row first, reusing the folder-creation insert.
		affected, err := d.db.InsertEntryWith(tx, ctx, &storage.EntryModel{
			EntryID: newPrefix,
			Storage: d.storageID,
		})
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("copyFolder", newPrefix, common.ErrOperationFailed)
		}
		created = append(created, newPrefix)

		descendants, err := d.db.SelectByPrefixWith(tx, ctx, d.storageID, sourceFolderID, false)
		if err != nil {
			return err
		}
		if len(descendants) == 0 {
			return nil
		}
		copies := make([]storage.EntryModel, 0, len(descendants))
		for _, row := range descendants {
			newID := newPrefix + strings.TrimPrefix(row.EntryID, sourceFolderID)
			copies = append(copies, storage.EntryModel{
				EntryID: newID,
				Storage: d.storageID,
				Data:    row.Data,
			})
			created = append(created, newID)
		}
		inserted, err := d.db.InsertEntriesWith(tx, ctx, copies)
		if err != nil {
			return err
		}
		if inserted != int64(len(copies)) {
			// Roll back, but report this as a value, not an error.
			countMismatch = true
			return common.ErrOperationFailed
		}
		return nil
	})
	if countMismatch {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	for _, id := range created {
		d.exists.Set(d.storageID, id, true)
	}
	d.log.WithFields(log.Fields{"from": sourceFolderID, "to": newPrefix, "rows": len(created)}).Debug("copied folder")
	return newPrefix, true, nil
}
