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

package chaindb

import (
	"bytes"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/hashtable"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/slab"
)

const filterLinkWidth = 8 // slab-backed: byte offsets, per this repo's 8-byte-width choice (see DESIGN.md)

// FilterDatabase stores one compact filter per block for a single filter
// type: a hash table keyed by block hash, slab-backed since filter bodies
// vary in length. One instance exists per filter type (BIP 157's basic and
// extended filters get separate databases); the type itself is carried by
// the Go value, not written into every record, grounded directly on
// original_source filter_database.cpp's constructor-bound filter_type_
// field.
type FilterDatabase struct {
	filterType uint8

	store   *filestore.Store
	manager *slab.Manager
	table   *hashtable.Table

	metadataMu  sync.RWMutex
	checkpoints []chainhash.Hash
}

// OpenFilterDatabase opens (but does not Create/Start) the backing file
// for a single filter type under dir.
func OpenFilterDatabase(dir string, filterType uint8, buckets uint32, minimumSize uint64, growthRate uint16) (*FilterDatabase, error) {
	path := filepath.Join(dir, filterFileName(filterType))
	store, err := filestore.Open(path, minimumSize, growthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open filter table")
	}

	header := hashtable.HeaderSize(buckets, filterLinkWidth)
	manager := slab.New(store, header)
	table := hashtable.New(store, manager, buckets, filterLinkWidth, chainhash.HashSize)

	return &FilterDatabase{filterType: filterType, store: store, manager: manager, table: table}, nil
}

func filterFileName(filterType uint8) string {
	switch filterType {
	case 0:
		return "neutrino_filter_table"
	default:
		return "neutrino_filter_table_" + string(rune('0'+filterType))
	}
}

func (f *FilterDatabase) Create() error { return f.table.Create() }
func (f *FilterDatabase) Start() error  { return f.table.Start() }
func (f *FilterDatabase) Commit() error { return f.manager.Commit() }
func (f *FilterDatabase) Flush() error  { return f.store.Flush() }
func (f *FilterDatabase) Close() error  { return f.store.Close(f.store.Capacity()) }

// Get returns the filter bytes stored for hash.
func (f *FilterDatabase) Get(hash chainhash.Hash) ([]byte, error) {
	link, err := f.table.Find(hash[:])
	if err != nil {
		return nil, err
	}
	if link == chainstore.NotAllocated {
		return nil, ErrFilterNotFound
	}

	f.metadataMu.RLock()
	defer f.metadataMu.RUnlock()

	acc, err := f.table.Element(link)
	if err != nil {
		return nil, err
	}
	defer acc.Release()

	r := bytes.NewReader(acc.Bytes())
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, Wrap(err, "chaindb: read filter length")
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return nil, Wrap(err, "chaindb: read filter body")
	}
	return out, nil
}

// Store writes a new filter for hash. Per spec, storing over an existing
// hash is a caller error handled by the caller checking Get first; this
// mirrors original_source's storize(), which always appends a new element
// and relies on the facade never calling store() twice for one hash.
func (f *FilterDatabase) Store(hash chainhash.Hash, filter []byte) error {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(filter))); err != nil {
		return Wrap(err, "chaindb: encode filter length")
	}
	buf.Write(filter)
	body := buf.Bytes()

	link, err := f.table.Allocator().Create(hash[:], uint64(len(body)), func(dst []byte) { copy(dst, body) })
	if err != nil {
		return Wrap(err, "chaindb: allocate filter")
	}
	return f.table.Link(hash[:], link)
}

// SetCheckpoints replaces the in-memory checkpoint list. Checkpoints are
// caller-supplied (not disk-scanned), per spec's "in-memory checkpoint
// list" note.
func (f *FilterDatabase) SetCheckpoints(checkpoints []chainhash.Hash) {
	f.metadataMu.Lock()
	defer f.metadataMu.Unlock()
	f.checkpoints = append([]chainhash.Hash(nil), checkpoints...)
}

// Checkpoints returns the current in-memory checkpoint list.
func (f *FilterDatabase) Checkpoints() []chainhash.Hash {
	f.metadataMu.RLock()
	defer f.metadataMu.RUnlock()
	return append([]chainhash.Hash(nil), f.checkpoints...)
}
