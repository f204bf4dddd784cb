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
	"crypto/md5"  //nolint:gosec // MD5 offered for content digests, not security
	"crypto/sha1" //nolint:gosec // SHA1 offered for content digests, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/cespare/xxhash/v2"

	"github.com/JostBaron/fal-database/internal/common"
)

// newHasher returns a hash.Hash for the named algorithm, or
// ErrInvalidArgument for an unsupported name.
func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "md5":
		return md5.New(), nil //nolint:gosec
	case "sha1":
		return sha1.New(), nil //nolint:gosec
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "xxh64":
		return xxhash.New(), nil
	default:
		return nil, common.NewIdentifierError("hash", algorithm, common.ErrInvalidArgument)
	}
}

// Hash computes the hex-encoded content digest of a file using the named
// algorithm. The algorithm is validated before any row is read.
func (d *Driver) Hash(ctx context.Context, identifier, algorithm string) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}
	content, err := d.GetFileContents(ctx, identifier)
	if err != nil {
		return "", err
	}
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
