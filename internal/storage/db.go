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
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/JostBaron/fal-database/internal/util"
)

// DB wraps a Bun database instance for type-safe queries against the
// fal-database tables.
type DB struct {
	*bun.DB
	sqlDB *sql.DB
}

// Open opens (or creates) the SQLite database at path, applies the
// connection PRAGMAs and creates the schema if missing.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := NewDB(sqlDB)
	if err := db.InitSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// NewDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewDB(sqlDB *sql.DB) *DB {
	return &DB{
		DB:    bun.NewDB(sqlDB, sqlitedialect.New()),
		sqlDB: sqlDB,
	}
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// RunInTx runs fn inside a transaction, retrying the whole transaction on
// transient "database is locked" errors. Any error from fn rolls the
// transaction back.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return util.Retry(ctx, func() error {
		return db.DB.RunInTx(ctx, &sql.TxOptions{}, fn)
	}, util.DatabaseRetryOptions(ctx)...)
}

// --- Storage registry operations ---

// CreateStorage registers a new storage and returns its id.
func (db *DB) CreateStorage(ctx context.Context, name string) (int64, error) {
	model := &StorageModel{Name: name}
	// RETURNING clause because libsql doesn't support LastInsertId.
	_, err := db.NewInsert().
		Model(model).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return model.ID, nil
}

// EnsureStorage registers a storage under an explicit id (upsert on name).
func (db *DB) EnsureStorage(ctx context.Context, id int64, name string) error {
	_, err := db.NewInsert().
		Model(&StorageModel{ID: id, Name: name}).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	return err
}

// GetStorage looks a storage up by id.
func (db *DB) GetStorage(ctx context.Context, id int64) (*StorageModel, error) {
	var model StorageModel
	err := db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}
