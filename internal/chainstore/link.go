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

// Package chainstore holds the small set of types shared by every storage
// primitive: the growable memory-mapped file store, the record and slab
// allocators built on it, and the hash table built on either allocator.
package chainstore

import "sync"

// Link is a manager-assigned identity for an allocated slot: a record
// index for a fixed-size manager, or a byte offset for a variable-size
// manager. Link meanings never change once assigned; a manager only ever
// grows.
type Link uint64

// Accessor pins a window into a live memory mapping for the duration of a
// read or write. Callers must call Release once they are done with Data;
// holding an Accessor across a Store.Resize/Reserve call on the same store
// will block that call until Release runs. release is wrapped in a
// sync.Once shared with every Accessor derived via Sub, so the underlying
// pin (an RUnlock, typically) fires exactly once no matter which of the
// parent or a child releases first.
type Accessor struct {
	Data    []byte
	once    *sync.Once
	release func()
}

// NewAccessor wraps data with a release callback. release may be nil for
// accessors that don't pin anything (e.g. slices of an already-released
// accessor's data copied out by the caller).
func NewAccessor(data []byte, release func()) *Accessor {
	return &Accessor{Data: data, once: &sync.Once{}, release: release}
}

// Bytes returns the pinned window. The slice is only valid until Release.
func (a *Accessor) Bytes() []byte {
	return a.Data
}

// Release unpins the window. Safe to call multiple times, including
// concurrently from a parent and a Sub view of it.
func (a *Accessor) Release() {
	if a == nil || a.release == nil {
		return
	}
	if a.once == nil {
		a.release()
		return
	}
	a.once.Do(a.release)
}

// Sub returns a new Accessor over a byte range of Data that shares this
// accessor's release guard, so releasing either one releases the pin
// exactly once, whenever the caller is done with the narrower view.
func (a *Accessor) Sub(offset, length int) *Accessor {
	return &Accessor{Data: a.Data[offset : offset+length], once: a.once, release: a.release}
}

// NotAllocated is the terminal sentinel: the maximum representable Link.
// It marks empty bucket heads, chain tails, and "no value" fields such as
// tx_start or spender_height.
const NotAllocated Link = Link(^uint64(0))

// Manager is the storage primitive a hash table (C4) is built over. Both
// the fixed-size record manager (C2) and the variable-size slab manager
// (C3) satisfy it; the hash table never distinguishes between them. Go has
// no template specialization, so an interface with two implementations
// stands in for libbitcoin's manager template parameter (see spec §9).
type Manager interface {
	// Create initializes a fresh, empty manager region and its watermark.
	Create() error

	// Start prepares an existing manager region for use, reading back the
	// watermark left by the last committed run.
	Start() error

	// Commit durably advances the watermark to the current payload size.
	Commit() error

	// Allocate reserves size bytes of new payload and returns the link to
	// its start. It advances the in-memory watermark; the on-disk watermark
	// is written only by Commit.
	Allocate(size uint64) (Link, error)

	// Get returns an accessor positioned at link. The caller must Release it.
	Get(link Link) (*Accessor, error)

	// PastEOF reports whether link is at or beyond the in-memory watermark
	// (which includes allocations not yet committed).
	PastEOF(link Link) bool
}
