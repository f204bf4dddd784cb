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

package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced folder, file or entry does
	// not exist where existence was required.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a target name or identifier is already
	// occupied.
	ErrConflict = errors.New("already exists")
	// ErrOperationFailed is returned when a mutation's affected-row count
	// did not match the expected count, or a required local I/O step failed.
	ErrOperationFailed = errors.New("operation failed")
	// ErrInvalidArgument is returned for unsupported property names or hash
	// algorithms.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IdentifierError records an error together with the operation and the entry
// identifier that caused it.
type IdentifierError struct {
	Op         string
	Identifier string
	Err        error
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Identifier, e.Err)
}

func (e *IdentifierError) Unwrap() error {
	return e.Err
}

// NewIdentifierError wraps err with operation and identifier context.
func NewIdentifierError(op, identifier string, err error) *IdentifierError {
	return &IdentifierError{Op: op, Identifier: identifier, Err: err}
}

// IsNotFound reports whether err indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err indicates an occupied identifier.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
