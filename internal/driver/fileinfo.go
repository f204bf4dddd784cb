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
	"crypto/sha1" //nolint:gosec // identifier hashes, not security
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/JostBaron/fal-database/internal/common"
)

// Supported entry property names.
const (
	PropertySize           = "size"
	PropertyName           = "name"
	PropertyExtension      = "extension"
	PropertyMimeType       = "mimetype"
	PropertyIdentifier     = "identifier"
	PropertyIdentifierHash = "identifier_hash"
	PropertyFolderHash     = "folder_hash"
	PropertyStorage        = "storage"
)

// IdentifierHash returns the one-way digest used to index identifiers in
// the file registry.
func IdentifierHash(identifier string) string {
	sum := sha1.Sum([]byte(identifier)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// GetFileForLocalProcessing materializes a file's blob into a uniquely
// named local temp file, suffixed with the original extension so
// downstream type-sniffing works. The file is tracked and removed when the
// driver is closed.
func (d *Driver) GetFileForLocalProcessing(ctx context.Context, identifier string) (string, error) {
	content, err := d.GetFileContents(ctx, identifier)
	if err != nil {
		return "", err
	}

	name := "faldb-" + uuid.New().String()
	if ext := common.Extension(identifier); ext != "" {
		name += "." + ext
	}
	localPath := filepath.Join(d.tempDir, name)
	if err := os.WriteFile(localPath, content, 0600); err != nil {
		return "", common.NewIdentifierError("localProcessing", identifier,
			fmt.Errorf("%w: writing temp file: %v", common.ErrOperationFailed, err))
	}

	d.mu.Lock()
	d.tempFiles = append(d.tempFiles, localPath)
	d.mu.Unlock()

	return localPath, nil
}

// discardLocalCopy removes a temp file created by GetFileForLocalProcessing
// and untracks it.
func (d *Driver) discardLocalCopy(localPath string) {
	d.mu.Lock()
	for i, p := range d.tempFiles {
		if p == localPath {
			d.tempFiles = append(d.tempFiles[:i], d.tempFiles[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		d.log.WithError(err).WithField("path", localPath).Warn("failed to remove temp file")
	}
}

// detectMimeType sniffs the MIME type of a local file, preferring the
// extension mapping and falling back to content sniffing.
func detectMimeType(localPath string) (string, error) {
	if byExt := mime.TypeByExtension(filepath.Ext(localPath)); byExt != "" {
		return byExt, nil
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// http.DetectContentType needs at most the first 512 bytes.
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "application/octet-stream", nil
	}
	return http.DetectContentType(buf[:n]), nil
}

// EntryProperty computes a single metadata property of a file entry.
// Unsupported property names fail with InvalidArgument. The mimetype
// property materializes the content locally to sniff the type, then
// discards the temporary copy.
func (d *Driver) EntryProperty(ctx context.Context, identifier, property string) (string, error) {
	identifier = common.CanonicalFileIdentifier(identifier)

	switch property {
	case PropertyName:
		return common.BaseName(identifier), nil
	case PropertyExtension:
		return common.Extension(identifier), nil
	case PropertyIdentifier:
		return identifier, nil
	case PropertyIdentifierHash:
		return IdentifierHash(identifier), nil
	case PropertyFolderHash:
		return IdentifierHash(common.ParentFolderIdentifier(identifier)), nil
	case PropertyStorage:
		return strconv.FormatInt(d.storageID, 10), nil
	case PropertySize:
		content, err := d.GetFileContents(ctx, identifier)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(len(content)), nil
	case PropertyMimeType:
		localPath, err := d.GetFileForLocalProcessing(ctx, identifier)
		if err != nil {
			return "", err
		}
		defer d.discardLocalCopy(localPath)
		mimeType, err := detectMimeType(localPath)
		if err != nil {
			return "", common.NewIdentifierError("entryProperty", identifier,
				fmt.Errorf("%w: sniffing mime type: %v", common.ErrOperationFailed, err))
		}
		return mimeType, nil
	default:
		return "", common.NewIdentifierError("entryProperty", property, common.ErrInvalidArgument)
	}
}
