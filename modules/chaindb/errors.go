// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.
//
// The ledgerstore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgerstore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgerstore library. If not, see <http://www.gnu.org/licenses/>.

// Package chaindb defines the errors and exit codes common to the block,
// transaction, and filter databases, centralized here the way the teacher
// centralizes its own sentinel errors in pkg/errors.
package chaindb

import (
	"errors"
	"fmt"
)

// Code enumerates the outcome of a chaindb operation, per spec §6.
type Code int

const (
	CodeSuccess Code = iota
	CodeStoreLockFailure
	CodeOperationFailed
	CodeDuplicateTransaction
	CodeNotFound
	CodeStoreBlockMissingParent
	CodeStoreBlockInvalidHeight
	CodeStoreBlockDuplicate
	CodeStoreBlockInvalidHash
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeStoreLockFailure:
		return "store_lock_failure"
	case CodeOperationFailed:
		return "operation_failed"
	case CodeDuplicateTransaction:
		return "duplicate_transaction"
	case CodeNotFound:
		return "not_found"
	case CodeStoreBlockMissingParent:
		return "store_block_missing_parent"
	case CodeStoreBlockInvalidHeight:
		return "store_block_invalid_height"
	case CodeStoreBlockDuplicate:
		return "store_block_duplicate"
	case CodeStoreBlockInvalidHash:
		return "store_block_invalid_hash"
	default:
		return "unknown"
	}
}

// =====================
// Store / lock errors
// =====================

var (
	// errDirectoryRequired is returned by Settings.Validate when Directory is empty.
	errDirectoryRequired = errors.New("chaindb: directory is required")

	// ErrStoreLocked is returned by Open when the exclusive lock is already held.
	ErrStoreLocked = errors.New("chaindb: store is locked by another process")

	// ErrUncleanShutdown is returned by Open when the flush-lock sentinel file
	// is present: a prior write began but never called EndWrite.
	ErrUncleanShutdown = errors.New("chaindb: store corrupt or unclean shutdown, refusing to start")

	// ErrNotWriting is returned by EndWrite when BeginWrite was not called first.
	ErrNotWriting = errors.New("chaindb: end_write called without a matching begin_write")
)

// =====================
// Block database errors
// =====================

var (
	// ErrBlockNotFound is returned when a block hash has no record. A height
	// with no index entry reports ErrEmptyStack instead.
	ErrBlockNotFound = errors.New("chaindb: block not found")

	// ErrMissingParent names the missing-parent outcome. No operation in
	// this package returns it: Store does not check a header's previous hash.
	ErrMissingParent = errors.New("chaindb: block references an unknown parent")

	// ErrInvalidHeight is returned when a push height does not extend the
	// relevant index by exactly one (strict-stack discipline, spec I3), and
	// by PopAbove when the block at the fork height does not have the fork
	// point's hash.
	ErrInvalidHeight = errors.New("chaindb: block height does not extend the index")

	// ErrDuplicateBlock is returned when a block hash is already stored.
	ErrDuplicateBlock = errors.New("chaindb: block already stored")

	// ErrInvalidState is returned when a state transition violates spec I4's
	// mutual-exclusion constraints on the block state bitfield.
	ErrInvalidState = errors.New("chaindb: invalid block state transition")

	// ErrEmptyStack is returned when a height index has no usable entry at
	// the requested height: GetByHeight above the top, a pop at a height
	// that is not the top, or PopAbove with the fork point above the top.
	ErrEmptyStack = errors.New("chaindb: nothing above the requested height")
)

// =====================
// Transaction database errors
// =====================

var (
	// ErrTxNotFound is returned when a transaction hash has no record.
	ErrTxNotFound = errors.New("chaindb: transaction not found")

	// ErrDuplicateTransaction names the duplicate-transaction outcome. Store
	// does not return it: storing an existing hash returns the existing link.
	ErrDuplicateTransaction = errors.New("chaindb: transaction already stored")

	// ErrPrevoutNotFound is returned when spend tracking references a prevout
	// whose transaction is not stored.
	ErrPrevoutNotFound = errors.New("chaindb: prevout transaction not found")
)

// =====================
// Filter database errors
// =====================

var (
	// ErrFilterNotFound is returned when a block hash has no filter record.
	ErrFilterNotFound = errors.New("chaindb: filter not found")
)

// Wrap wraps an error with additional context, nil-safe like the teacher's
// pkg/errors.Wrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
