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

package storage

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// FindFileRecordByLocation returns the file-registry row currently pointing
// at (storage, identifier), or nil when no logical file is registered there.
func (db *DB) FindFileRecordByLocation(ctx context.Context, storageID int64, identifier string) (*FileRecordModel, error) {
	return db.findFileRecordByLocationWith(db.DB, ctx, storageID, identifier)
}

// FindFileRecordByLocationWith is like FindFileRecordByLocation but uses
// the provided bun.IDB (for transaction support).
func (db *DB) FindFileRecordByLocationWith(idb bun.IDB, ctx context.Context, storageID int64, identifier string) (*FileRecordModel, error) {
	return db.findFileRecordByLocationWith(idb, ctx, storageID, identifier)
}

func (db *DB) findFileRecordByLocationWith(idb bun.IDB, ctx context.Context, storageID int64, identifier string) (*FileRecordModel, error) {
	var record FileRecordModel
	err := idb.NewSelect().
		Model(&record).
		Where("storage = ?", storageID).
		Where("identifier = ?", identifier).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// InsertFileRecord registers a logical file and returns its id.
func (db *DB) InsertFileRecord(ctx context.Context, record *FileRecordModel) (int64, error) {
	_, err := db.NewInsert().
		Model(record).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

// UpdateFileRecordLocation repoints a file-registry row at a new storage and
// identifier. Returns the affected-row count.
func (db *DB) UpdateFileRecordLocationWith(idb bun.IDB, ctx context.Context, recordID, storageID int64, identifier, identifierHash, folderHash string) (int64, error) {
	res, err := idb.NewUpdate().
		Model((*FileRecordModel)(nil)).
		Set("storage = ?", storageID).
		Set("identifier = ?", identifier).
		Set("identifier_hash = ?", identifierHash).
		Set("folder_hash = ?", folderHash).
		Where("id = ?", recordID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
