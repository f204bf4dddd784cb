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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/storage"
)

// targetFileIdentifier validates the target folder and computes the file
// identifier for a sanitized name, checking for collisions.
func (d *Driver) targetFileIdentifier(ctx context.Context, op, targetFolderID, name string) (string, error) {
	targetFolderID = common.CanonicalFolderIdentifier(targetFolderID)
	folderExists, err := d.entryExists(ctx, targetFolderID)
	if err != nil {
		return "", err
	}
	if !folderExists {
		return "", common.NewIdentifierError(op, targetFolderID, common.ErrNotFound)
	}

	sanitized := d.sanitize(name)
	if sanitized == "" {
		return "", common.NewIdentifierError(op, name, common.ErrInvalidArgument)
	}
	newID := targetFolderID + sanitized
	occupied, err := d.entryExists(ctx, newID)
	if err != nil {
		return "", err
	}
	if occupied {
		return "", common.NewIdentifierError(op, newID, common.ErrConflict)
	}
	return newID, nil
}

// AddFile inserts the content of a local file as a new entry in the target
// folder. With removeOriginal the local source is consumed: a failure to
// remove it rolls the insert back.
func (d *Driver) AddFile(ctx context.Context, localPath, targetFolderID, name string, removeOriginal bool) (string, error) {
	newID, err := d.targetFileIdentifier(ctx, "addFile", targetFolderID, name)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", common.NewIdentifierError("addFile", localPath,
			fmt.Errorf("%w: reading local file: %v", common.ErrOperationFailed, err))
	}
	if content == nil {
		content = []byte{}
	}

	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.InsertEntryWith(tx, ctx, &storage.EntryModel{
			EntryID: newID,
			Storage: d.storageID,
			Data:    content,
		})
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("addFile", newID, common.ErrOperationFailed)
		}
		if removeOriginal {
			if err := os.Remove(localPath); err != nil {
				return common.NewIdentifierError("addFile", localPath,
					fmt.Errorf("%w: removing local source: %v", common.ErrOperationFailed, err))
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	d.exists.Set(d.storageID, newID, true)
	d.log.WithFields(log.Fields{"identifier": newID, "bytes": len(content)}).Debug("added file")
	return newID, nil
}

// CreateFile inserts an empty file below parentID and returns its
// identifier.
func (d *Driver) CreateFile(ctx context.Context, name, parentID string) (string, error) {
	newID, err := d.targetFileIdentifier(ctx, "createFile", parentID, name)
	if err != nil {
		return "", err
	}

	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.InsertEntryWith(tx, ctx, &storage.EntryModel{
			EntryID: newID,
			Storage: d.storageID,
			Data:    []byte{},
		})
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("createFile", newID, common.ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	d.exists.Set(d.storageID, newID, true)
	return newID, nil
}

// GetFileContents returns the blob of a file entry.
func (d *Driver) GetFileContents(ctx context.Context, identifier string) ([]byte, error) {
	identifier = common.CanonicalFileIdentifier(identifier)
	entry, err := d.db.GetEntry(ctx, d.storageID, identifier)
	if err != nil {
		if common.IsNotFound(err) {
			return nil, common.NewIdentifierError("getFileContents", identifier, common.ErrNotFound)
		}
		return nil, err
	}
	if entry.Data == nil {
		return []byte{}, nil
	}
	return entry.Data, nil
}

// ReplaceFile overwrites the data column of an existing file, leaving the
// identifier untouched.
func (d *Driver) ReplaceFile(ctx context.Context, identifier string, content []byte) error {
	identifier = common.CanonicalFileIdentifier(identifier)
	exists, err := d.entryExists(ctx, identifier)
	if err != nil {
		return err
	}
	if !exists {
		return common.NewIdentifierError("replaceFile", identifier, common.ErrNotFound)
	}
	if content == nil {
		content = []byte{}
	}

	return d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.ReplaceDataWith(tx, ctx, d.storageID, identifier, content)
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("replaceFile", identifier, common.ErrOperationFailed)
		}
		return nil
	})
}

// DeleteFile removes a file row. A missing file is a NotFound error; a
// delete that executed but affected zero rows is reported as false, keeping
// the precondition failure distinct from the statement outcome.
func (d *Driver) DeleteFile(ctx context.Context, identifier string) (bool, error) {
	identifier = common.CanonicalFileIdentifier(identifier)
	exists, err := d.entryExists(ctx, identifier)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, common.NewIdentifierError("deleteFile", identifier, common.ErrNotFound)
	}

	affected, err := d.db.DeleteEntryWith(d.db.DB, ctx, d.storageID, identifier)
	if err != nil {
		return false, err
	}
	d.exists.InvalidatePath(d.storageID, identifier)
	d.log.WithField("identifier", identifier).Debug("deleted file")
	return affected == 1, nil
}

// RenameFile gives a file a new name inside its containing folder and
// returns the new identifier. Renaming to the same identifier is a no-op.
func (d *Driver) RenameFile(ctx context.Context, identifier, newName string) (string, error) {
	identifier = common.CanonicalFileIdentifier(identifier)
	sanitized := d.sanitize(newName)
	if sanitized == "" {
		return "", common.NewIdentifierError("renameFile", newName, common.ErrInvalidArgument)
	}
	newID := common.ParentFolderIdentifier(identifier) + sanitized
	if newID == identifier {
		return identifier, nil
	}

	exists, err := d.entryExists(ctx, identifier)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", common.NewIdentifierError("renameFile", identifier, common.ErrNotFound)
	}
	occupied, err := d.entryExists(ctx, newID)
	if err != nil {
		return "", err
	}
	if occupied {
		return "", common.NewIdentifierError("renameFile", newID, common.ErrConflict)
	}

	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.UpdateEntryIDWith(tx, ctx, d.storageID, identifier, newID)
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("renameFile", identifier, common.ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	d.exists.Set(d.storageID, identifier, false)
	d.exists.Set(d.storageID, newID, true)
	return newID, nil
}

// CopyFileWithinStorage copies a file's bytes to a new identifier in the
// target folder of the same storage.
func (d *Driver) CopyFileWithinStorage(ctx context.Context, identifier, targetFolderID, name string) (string, error) {
	identifier = common.CanonicalFileIdentifier(identifier)
	newID, err := d.targetFileIdentifier(ctx, "copyFile", targetFolderID, name)
	if err != nil {
		return "", err
	}

	// Read the source row inside the operation: the source may have
	// vanished between the caller's check and now.
	source, err := d.db.GetEntry(ctx, d.storageID, identifier)
	if err != nil {
		if common.IsNotFound(err) {
			return "", common.NewIdentifierError("copyFile", identifier, common.ErrNotFound)
		}
		return "", err
	}

	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.InsertEntryWith(tx, ctx, &storage.EntryModel{
			EntryID: newID,
			Storage: d.storageID,
			Data:    source.Data,
		})
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("copyFile", newID, common.ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	d.exists.Set(d.storageID, newID, true)
	return newID, nil
}

// MoveFileWithinStorage moves a file to the target folder under the given
// name, rewriting only the identifier column.
func (d *Driver) MoveFileWithinStorage(ctx context.Context, identifier, targetFolderID, name string) (string, error) {
	identifier = common.CanonicalFileIdentifier(identifier)
	exists, err := d.entryExists(ctx, identifier)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", common.NewIdentifierError("moveFile", identifier, common.ErrNotFound)
	}
	newID, err := d.targetFileIdentifier(ctx, "moveFile", targetFolderID, name)
	if err != nil {
		return "", err
	}

	err = d.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		affected, err := d.db.UpdateEntryIDWith(tx, ctx, d.storageID, identifier, newID)
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.NewIdentifierError("moveFile", identifier, common.ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	d.exists.Set(d.storageID, identifier, false)
	d.exists.Set(d.storageID, newID, true)
	d.log.WithFields(log.Fields{"from": identifier, "to": newID}).Debug("moved file")
	return newID, nil
}
