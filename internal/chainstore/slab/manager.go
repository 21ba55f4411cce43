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

// Package slab implements the variable-size slab allocator (C3), a direct
// port of libbitcoin's slab_manager<Link> (see
// bitcoin/database/primitives/slab_manager.hpp in the original sources):
// an append-only arena where each allocation can be any size and is
// addressed by its byte offset rather than an index.
package slab

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
)

const watermarkSize = 8

// Manager is an append-only allocator of variable-size slabs. A Link is a
// byte offset into the data region, not a slot index. It satisfies
// chainstore.Manager.
type Manager struct {
	store      *filestore.Store
	headerSize uint64

	mu          sync.RWMutex
	payloadSize uint64
}

var _ chainstore.Manager = (*Manager)(nil)

// New returns a slab manager over store, whose data region begins after
// headerSize bytes reserved by the embedder.
func New(store *filestore.Store, headerSize uint64) *Manager {
	return &Manager{store: store, headerSize: headerSize}
}

func (m *Manager) dataOffset() uint64 {
	return m.headerSize + watermarkSize
}

// Create initializes an empty manager: zeroes the watermark and reserves
// space for the header and watermark word.
func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Reserve(m.dataOffset()); err != nil {
		return fmt.Errorf("slab: create: %w", err)
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

// PayloadSize returns the size, in bytes, of all slabs allocated so far
// (excluding the header and watermark).
func (m *Manager) PayloadSize() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payloadSize
}

// Allocate reserves size bytes for a new slab and returns its byte
// offset. The in-memory watermark advances at once; Commit writes it to
// disk.
func (m *Manager) Allocate(size uint64) (chainstore.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	position := m.payloadSize
	if err := m.store.Reserve(m.dataOffset() + position + size); err != nil {
		return chainstore.NotAllocated, fmt.Errorf("slab: allocate: %w", err)
	}
	m.payloadSize = position + size
	return chainstore.Link(position), nil
}

// Get returns an accessor over the slab starting at link, extending to
// the end of the live mapping; the caller is expected to know or read its
// own length prefix from the returned bytes.
func (m *Manager) Get(link chainstore.Link) (*chainstore.Accessor, error) {
	acc, err := m.store.Access()
	if err != nil {
		return nil, fmt.Errorf("slab: get: %w", err)
	}

	offset := m.dataOffset() + uint64(link)
	data := acc.Bytes()
	if offset > uint64(len(data)) {
		acc.Release()
		return nil, fmt.Errorf("slab: get: link %d out of range", link)
	}
	return acc.Sub(int(offset), len(data)-int(offset)), nil
}

// PastEOF reports whether link is at or beyond the in-memory watermark,
// which includes allocations not yet committed.
func (m *Manager) PastEOF(link chainstore.Link) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(link) >= m.payloadSize
}

func (m *Manager) writeWatermarkLocked() error {
	acc, err := m.store.Access()
	if err != nil {
		return fmt.Errorf("slab: write watermark: %w", err)
	}
	defer acc.Release()

	data := acc.Bytes()
	if uint64(len(data)) < m.headerSize+watermarkSize {
		return fmt.Errorf("slab: write watermark: region too small")
	}
	binary.LittleEndian.PutUint64(data[m.headerSize:m.headerSize+watermarkSize], m.payloadSize)
	return nil
}

func (m *Manager) readWatermarkLocked() error {
	acc, err := m.store.Access()
	if err != nil {
		return fmt.Errorf("slab: read watermark: %w", err)
	}
	defer acc.Release()

	data := acc.Bytes()
	if uint64(len(data)) < m.headerSize+watermarkSize {
		return fmt.Errorf("slab: read watermark: region too small")
	}
	m.payloadSize = binary.LittleEndian.Uint64(data[m.headerSize : m.headerSize+watermarkSize])
	return nil
}
