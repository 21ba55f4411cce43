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

// Package record implements the fixed-size record allocator (C2): an
// append-only table of equal-size slots indexed by a monotonic record
// number, grounded on libbitcoin's record_manager template but expressed
// as a concrete Go type over a single record width.
package record

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
)

// watermarkSize is the width of the payload_size word written after the
// embedder's header bytes.
const watermarkSize = 8

// Manager is an append-only allocator of fixed-size records. Every record
// is recordSize bytes; a Link is a record index, not a byte offset. It
// satisfies chainstore.Manager.
type Manager struct {
	store      *filestore.Store
	headerSize uint64
	recordSize uint64

	mu          sync.RWMutex
	payloadSize uint64 // bytes of allocated payload (written to disk by Commit); count = payloadSize/recordSize
}

var _ chainstore.Manager = (*Manager)(nil)

// New returns a record manager over store, whose data region begins after
// headerSize bytes reserved by the embedder (e.g. a hash table's bucket
// array), each record being recordSize bytes wide.
func New(store *filestore.Store, headerSize, recordSize uint64) *Manager {
	return &Manager{store: store, headerSize: headerSize, recordSize: recordSize}
}

// dataOffset is where the first record begins: the embedder's header plus
// this manager's own watermark word.
func (m *Manager) dataOffset() uint64 {
	return m.headerSize + watermarkSize
}

// Create initializes an empty manager: zeroes the watermark and reserves
// enough space for the header and watermark word.
func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Reserve(m.dataOffset()); err != nil {
		return fmt.Errorf("record: create: %w", err)
	}
	m.payloadSize = 0
	return m.writeWatermarkLocked()
}

// Start reads back the watermark left by the last committed run.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readWatermarkLocked()
}

// Commit durably advances the watermark to the current payload size.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeWatermarkLocked()
}

// Count returns the number of fully allocated records (distinct from
// PastEOF, which compares against a single link).
func (m *Manager) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payloadSize / m.recordSize
}

// Truncate shrinks the committed watermark to count records and durably
// writes it. Physical file space is not reclaimed, matching spec's
// "physical space is not reclaimed" policy for hash-table unlink; this is
// the equivalent operation for the strict-stack height indexes (C5),
// which need to pop their top entry on demote.
func (m *Manager) Truncate(count uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := count * m.recordSize
	if target > m.payloadSize {
		return fmt.Errorf("record: truncate: count %d exceeds current %d", count, m.payloadSize/m.recordSize)
	}
	m.payloadSize = target
	return m.writeWatermarkLocked()
}

// Allocate reserves count records (size = recordSize*count, per spec
// §4.2) and returns the index of the first one. The in-memory watermark
// advances at once; Commit writes it to disk.
func (m *Manager) Allocate(size uint64) (chainstore.Link, error) {
	if size%m.recordSize != 0 {
		return chainstore.NotAllocated, fmt.Errorf("record: allocate: size %d is not a multiple of record size %d", size, m.recordSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	position := m.payloadSize
	if size == 0 {
		// Per spec, allocate(0) succeeds and leaves the watermark unchanged.
		return chainstore.Link(position / m.recordSize), nil
	}
	if err := m.store.Reserve(m.dataOffset() + position + size); err != nil {
		return chainstore.NotAllocated, fmt.Errorf("record: allocate: %w", err)
	}
	m.payloadSize = position + size
	return chainstore.Link(position / m.recordSize), nil
}

// Get returns an accessor positioned at the record for link, recordSize
// bytes wide.
func (m *Manager) Get(link chainstore.Link) (*chainstore.Accessor, error) {
	acc, err := m.store.Access()
	if err != nil {
		return nil, fmt.Errorf("record: get: %w", err)
	}

	offset := m.dataOffset() + uint64(link)*m.recordSize
	if offset+m.recordSize > uint64(len(acc.Bytes())) {
		acc.Release()
		return nil, fmt.Errorf("record: get: link %d out of range", link)
	}
	return acc.Sub(int(offset), int(m.recordSize)), nil
}

// PastEOF reports whether link is at or beyond the in-memory watermark,
// which includes allocations not yet committed.
func (m *Manager) PastEOF(link chainstore.Link) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(link) >= m.payloadSize/m.recordSize
}

func (m *Manager) writeWatermarkLocked() error {
	acc, err := m.store.Access()
	if err != nil {
		return fmt.Errorf("record: write watermark: %w", err)
	}
	defer acc.Release()

	data := acc.Bytes()
	if uint64(len(data)) < m.headerSize+watermarkSize {
		return fmt.Errorf("record: write watermark: region too small")
	}
	binary.LittleEndian.PutUint64(data[m.headerSize:m.headerSize+watermarkSize], m.payloadSize)
	return nil
}

func (m *Manager) readWatermarkLocked() error {
	acc, err := m.store.Access()
	if err != nil {
		return fmt.Errorf("record: read watermark: %w", err)
	}
	defer acc.Release()

	data := acc.Bytes()
	if uint64(len(data)) < m.headerSize+watermarkSize {
		return fmt.Errorf("record: read watermark: region too small")
	}
	m.payloadSize = binary.LittleEndian.Uint64(data[m.headerSize : m.headerSize+watermarkSize])
	return nil
}
