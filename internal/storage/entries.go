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

	"github.com/JostBaron/fal-database/internal/common"
)

// escapeLike escapes LIKE wildcards in an identifier so prefix matching is
// literal. ESCAPE '\' must accompany any pattern built from this.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// GetEntry retrieves a single entry. Returns common.ErrNotFound if absent.
func (db *DB) GetEntry(ctx context.Context, storageID int64, entryID string) (*EntryModel, error) {
	return db.getEntryWith(db.DB, ctx, storageID, entryID)
}

// GetEntryWith is like GetEntry but uses the provided bun.IDB (for
// transaction support).
func (db *DB) GetEntryWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string) (*EntryModel, error) {
	return db.getEntryWith(idb, ctx, storageID, entryID)
}

func (db *DB) getEntryWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string) (*EntryModel, error) {
	var entry EntryModel
	err := idb.NewSelect().
		Model(&entry).
		Where("storage = ?", storageID).
		Where("entry_id = ?", entryID).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// EntryCount returns the number of rows with exactly this identifier
// (0 or 1 given the uniqueness constraint). This is the authoritative
// existence check backing the cache.
func (db *DB) EntryCount(ctx context.Context, storageID int64, entryID string) (int, error) {
	return db.entryCountWith(db.DB, ctx, storageID, entryID)
}

// EntryCountWith is like EntryCount but uses the provided bun.IDB.
func (db *DB) EntryCountWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string) (int, error) {
	return db.entryCountWith(idb, ctx, storageID, entryID)
}

func (db *DB) entryCountWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string) (int, error) {
	return idb.NewSelect().
		Model((*EntryModel)(nil)).
		Where("storage = ?", storageID).
		Where("entry_id = ?", entryID).
		Count(ctx)
}

// CountByPrefix counts rows whose identifier starts with prefix. With
// excludeSelf, the row whose identifier equals the prefix is not counted —
// that is the "is this folder empty" question.
func (db *DB) CountByPrefix(ctx context.Context, storageID int64, prefix string, excludeSelf bool) (int, error) {
	return db.countByPrefixWith(db.DB, ctx, storageID, prefix, excludeSelf)
}

// CountByPrefixWith is like CountByPrefix but uses the provided bun.IDB.
func (db *DB) CountByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, excludeSelf bool) (int, error) {
	return db.countByPrefixWith(idb, ctx, storageID, prefix, excludeSelf)
}

func (db *DB) countByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, excludeSelf bool) (int, error) {
	q := idb.NewSelect().
		Model((*EntryModel)(nil)).
		Where("storage = ?", storageID).
		Where("entry_id LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	if excludeSelf {
		q = q.Where("entry_id != ?", prefix)
	}
	return q.Count(ctx)
}

// SelectByPrefix returns all rows whose identifier starts with prefix,
// excluding the prefix row itself, ordered lexicographically by identifier.
func (db *DB) SelectByPrefix(ctx context.Context, storageID int64, prefix string, descending bool) ([]EntryModel, error) {
	return db.selectByPrefixWith(db.DB, ctx, storageID, prefix, descending)
}

// SelectByPrefixWith is like SelectByPrefix but uses the provided bun.IDB.
func (db *DB) SelectByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, descending bool) ([]EntryModel, error) {
	return db.selectByPrefixWith(idb, ctx, storageID, prefix, descending)
}

func (db *DB) selectByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, descending bool) ([]EntryModel, error) {
	order := "entry_id ASC"
	if descending {
		order = "entry_id DESC"
	}
	var entries []EntryModel
	err := idb.NewSelect().
		Model(&entries).
		Where("storage = ?", storageID).
		Where("entry_id LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Where("entry_id != ?", prefix).
		OrderExpr(order).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SelectIdentifiersByPrefix returns the identifiers (no blobs) of all rows
// whose identifier starts with prefix.
func (db *DB) SelectIdentifiersByPrefix(ctx context.Context, storageID int64, prefix string, excludeSelf, descending bool) ([]string, error) {
	return db.selectIdentifiersByPrefixWith(db.DB, ctx, storageID, prefix, excludeSelf, descending)
}

// SelectIdentifiersByPrefixWith is like SelectIdentifiersByPrefix but uses
// the provided bun.IDB.
func (db *DB) SelectIdentifiersByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, excludeSelf, descending bool) ([]string, error) {
	return db.selectIdentifiersByPrefixWith(idb, ctx, storageID, prefix, excludeSelf, descending)
}

func (db *DB) selectIdentifiersByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string, excludeSelf, descending bool) ([]string, error) {
	order := "entry_id ASC"
	if descending {
		order = "entry_id DESC"
	}
	q := idb.NewSelect().
		Model((*EntryModel)(nil)).
		Column("entry_id").
		Where("storage = ?", storageID).
		Where("entry_id LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		OrderExpr(order)
	if excludeSelf {
		q = q.Where("entry_id != ?", prefix)
	}
	var ids []string
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertEntries inserts the given rows in one statement and returns the
// number of rows actually inserted. Callers compare it against the number
// requested and roll back on mismatch.
func (db *DB) InsertEntriesWith(idb bun.IDB, ctx context.Context, entries []EntryModel) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	res, err := idb.NewInsert().
		Model(&entries).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertEntry inserts a single row and returns the affected-row count.
func (db *DB) InsertEntryWith(idb bun.IDB, ctx context.Context, entry *EntryModel) (int64, error) {
	res, err := idb.NewInsert().
		Model(entry).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateEntryID rewrites the identifier of one row in place, leaving the
// blob untouched. Returns the affected-row count.
func (db *DB) UpdateEntryIDWith(idb bun.IDB, ctx context.Context, storageID int64, oldID, newID string) (int64, error) {
	res, err := idb.NewUpdate().
		Model((*EntryModel)(nil)).
		Set("entry_id = ?", newID).
		Where("storage = ?", storageID).
		Where("entry_id = ?", oldID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceData overwrites the data column of one row. Returns the
// affected-row count.
func (db *DB) ReplaceDataWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string, data []byte) (int64, error) {
	res, err := idb.NewUpdate().
		Model((*EntryModel)(nil)).
		Set("data = ?", data).
		Where("storage = ?", storageID).
		Where("entry_id = ?", entryID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteEntry removes exactly one row. Returns the affected-row count.
func (db *DB) DeleteEntryWith(idb bun.IDB, ctx context.Context, storageID int64, entryID string) (int64, error) {
	res, err := idb.NewDelete().
		Model((*EntryModel)(nil)).
		Where("storage = ?", storageID).
		Where("entry_id = ?", entryID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByPrefix removes every row whose identifier starts with prefix,
// the prefix row included. Returns the affected-row count.
func (db *DB) DeleteByPrefixWith(idb bun.IDB, ctx context.Context, storageID int64, prefix string) (int64, error) {
	res, err := idb.NewDelete().
		Model((*EntryModel)(nil)).
		Where("storage = ?", storageID).
		Where("entry_id LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
