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
	"github.com/uptrace/bun"

	"github.com/JostBaron/fal-database/internal/common"
)

// Bun ORM models for the fal-database tables.

// EntryModel represents one row of the entries table: a file or a folder
// within one storage partition. Folder identifiers end in "/" and carry
// NULL data; file identifiers never end in "/" and carry a (possibly
// empty) blob.
type EntryModel struct {
	bun.BaseModel `bun:"table:entries"`

	EntryID string `bun:"entry_id,pk"`
	Storage int64  `bun:"storage,pk"`
	Data    []byte `bun:"data"` // nil = folder
}

// IsFolder reports whether the entry is a folder, derived from the
// identifier convention rather than from the data column.
func (m *EntryModel) IsFolder() bool {
	return common.IsFolderIdentifier(m.EntryID)
}

// FileRecordModel represents the file registry: the table mapping a logical
// file of the surrounding system to its storage, identifier and hashes.
// Migration keeps these rows pointed at the file's current location.
type FileRecordModel struct {
	bun.BaseModel `bun:"table:file_records"`

	ID             int64  `bun:"id,pk,autoincrement"`
	Storage        int64  `bun:"storage,notnull"`
	Identifier     string `bun:"identifier,notnull"`
	IdentifierHash string `bun:"identifier_hash,notnull"`
	FolderHash     string `bun:"folder_hash,notnull"`
	Name           string `bun:"name,notnull"`
	Size           int64  `bun:"size,notnull"`
	MimeType       string `bun:"mime_type"`
}

// StorageModel represents the storage/tenant registry. Entries cascade on
// storage deletion.
type StorageModel struct {
	bun.BaseModel `bun:"table:storages"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}
