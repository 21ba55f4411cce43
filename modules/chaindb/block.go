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

// Package chaindb implements the blockchain-specific storage engine (C5-C9):
// the block and transaction state machines, the filter database, and the
// data-base facade that coordinates writes across them. It is grounded on
// original_source's block_database.hpp/data_base.cpp, reworked from C++
// templates over array_index link types into Go structs built on the
// internal/chainstore primitives.
package chaindb

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/hashtable"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/record"
)

// Block state bits (spec §3/§4.5). At most one of {candidate, confirmed}
// and at most one of {valid, invalid} may be set; pooled excludes both
// candidate and confirmed (invariant I4).
const (
	stateValid     uint8 = 1 << 0
	stateInvalid   uint8 = 1 << 1
	statePooled    uint8 = 1 << 2
	stateCandidate uint8 = 1 << 3
	stateConfirmed uint8 = 1 << 4
)

const (
	blockHeaderSize = 80 // wire.BlockHeader canonical serialization
	blockKeySize    = chainhash.HashSize

	// blockRecordSize = header(80) + mtp(4) + checksum(4) + state(1) +
	// height(4) + tx_start(4, a record link into the tx-association
	// table) + tx_count(4).
	blockRecordSize = blockHeaderSize + 4 + 4 + 1 + 4 + 4 + 4

	blockRecordLinkWidth = 4 // block_table is record-manager backed
	heightIndexLinkWidth = 4 // candidate_index/confirmed_index hold block-record links
	txIndexLinkWidth     = 8 // tx_index holds tx-database (slab) links
)

// BlockRecord is the decoded, in-memory form of a stored header.
type BlockRecord struct {
	Header         wire.BlockHeader
	MedianTimePast uint32
	Checksum       uint32
	State          uint8
	Height         uint32
	TxStart        chainstore.Link // record link into the tx-association table
	TxCount        uint32
}

func (r BlockRecord) Pooled() bool    { return r.State&statePooled != 0 }
func (r BlockRecord) Candidate() bool { return r.State&stateCandidate != 0 }
func (r BlockRecord) Confirmed() bool { return r.State&stateConfirmed != 0 }
func (r BlockRecord) Valid() bool     { return r.State&stateValid != 0 }
func (r BlockRecord) Invalid() bool   { return r.State&stateInvalid != 0 }

// heightIndex is a strict-stack record manager of fixed-width links,
// shared by candidate_index and confirmed_index (spec §3: "Each of
// candidate_index and confirmed_index is a record manager of plain link
// values. The record at position h is the block record link at height h.
// The watermark equals top_height + 1.").
type heightIndex struct {
	store   *filestore.Store
	manager *record.Manager
	width   int
}

func newHeightIndex(store *filestore.Store, width int) *heightIndex {
	return &heightIndex{store: store, manager: record.New(store, 0, uint64(width)), width: width}
}

func (h *heightIndex) Create() error { return h.manager.Create() }
func (h *heightIndex) Start() error  { return h.manager.Start() }
func (h *heightIndex) Commit() error { return h.manager.Commit() }
func (h *heightIndex) Flush() error  { return h.store.Flush() }

// Top returns the highest populated height. ok is false for an empty index.
func (h *heightIndex) Top() (uint32, bool) {
	count := h.manager.Count()
	if count == 0 {
		return 0, false
	}
	return uint32(count - 1), true
}

func (h *heightIndex) Get(height uint32) (chainstore.Link, error) {
	if uint64(height) >= h.manager.Count() {
		return chainstore.NotAllocated, ErrEmptyStack
	}
	acc, err := h.manager.Get(chainstore.Link(height))
	if err != nil {
		return chainstore.NotAllocated, err
	}
	defer acc.Release()
	return decodeLinkN(acc.Bytes(), h.width), nil
}

// Push appends value at the index's current top+1 and commits.
func (h *heightIndex) Push(value chainstore.Link) error {
	link, err := h.manager.Allocate(uint64(h.width))
	if err != nil {
		return err
	}
	acc, err := h.manager.Get(link)
	if err != nil {
		return err
	}
	encodeLinkN(acc.Bytes(), value, h.width)
	acc.Release()
	return h.manager.Commit()
}

// Pop truncates the index by one entry, requiring it currently be at height.
func (h *heightIndex) Pop(height uint32) error {
	top, ok := h.Top()
	if !ok || top != height {
		return ErrEmptyStack
	}
	if err := h.manager.Truncate(uint64(height)); err != nil {
		return err
	}
	return nil
}

func encodeLinkN(dst []byte, link chainstore.Link, width int) {
	if link == chainstore.NotAllocated {
		for i := range dst[:width] {
			dst[i] = 0xff
		}
		return
	}
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(link))
	case 8:
		binary.LittleEndian.PutUint64(dst, uint64(link))
	}
}

func decodeLinkN(src []byte, width int) chainstore.Link {
	allFF := true
	for _, b := range src[:width] {
		if b != 0xff {
			allFF = false
			break
		}
	}
	if allFF {
		return chainstore.NotAllocated
	}
	switch width {
	case 4:
		return chainstore.Link(binary.LittleEndian.Uint32(src))
	case 8:
		return chainstore.Link(binary.LittleEndian.Uint64(src))
	}
	return chainstore.NotAllocated
}

// BlockDatabase is the block header state machine (C5): a hash table
// keyed by block hash, two height-indexed stacks for the candidate and
// confirmed chains, and the block-to-transaction association table.
type BlockDatabase struct {
	blockStore *filestore.Store
	records    *record.Manager
	table      *hashtable.Table

	candidateIndex *heightIndex
	confirmedIndex *heightIndex

	txIndexStore *filestore.Store
	txIndex      *record.Manager

	// metadataMu guards the mutable tuple (checksum, tx_start, tx_count,
	// state) of every record, per spec §3/§5.
	metadataMu sync.RWMutex
}

// OpenBlockDatabase constructs the four backing files under dir (not yet
// created/started; call Create or Start next).
func OpenBlockDatabase(dir string, s Settings) (*BlockDatabase, error) {
	blockStore, err := filestore.Open(filepath.Join(dir, "block_table"), s.BlockTableMinimumSize, s.FileGrowthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open block_table")
	}
	candStore, err := filestore.Open(filepath.Join(dir, "candidate_index"), s.CandidateIndexMinimumSize, s.FileGrowthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open candidate_index")
	}
	confStore, err := filestore.Open(filepath.Join(dir, "confirmed_index"), s.ConfirmedIndexMinimumSize, s.FileGrowthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open confirmed_index")
	}
	txIndexStore, err := filestore.Open(filepath.Join(dir, "transaction_index"), s.TransactionIndexMinimumSize, s.FileGrowthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open transaction_index")
	}

	header := hashtable.HeaderSize(s.BlockTableBuckets, blockRecordLinkWidth)
	records := record.New(blockStore, header, blockKeySize+blockRecordLinkWidth+blockRecordSize)
	table := hashtable.New(blockStore, records, s.BlockTableBuckets, blockRecordLinkWidth, blockKeySize)

	return &BlockDatabase{
		blockStore:     blockStore,
		records:        records,
		table:          table,
		candidateIndex: newHeightIndex(candStore, heightIndexLinkWidth),
		confirmedIndex: newHeightIndex(confStore, heightIndexLinkWidth),
		txIndexStore:   txIndexStore,
		txIndex:        record.New(txIndexStore, 0, txIndexLinkWidth),
	}, nil
}

// Create initializes all four files as empty.
func (b *BlockDatabase) Create() error {
	if err := b.table.Create(); err != nil {
		return err
	}
	if err := b.candidateIndex.Create(); err != nil {
		return err
	}
	if err := b.confirmedIndex.Create(); err != nil {
		return err
	}
	return b.txIndex.Create()
}

// Start rereads watermarks from the last committed run.
func (b *BlockDatabase) Start() error {
	if err := b.table.Start(); err != nil {
		return err
	}
	if err := b.candidateIndex.Start(); err != nil {
		return err
	}
	if err := b.confirmedIndex.Start(); err != nil {
		return err
	}
	return b.txIndex.Start()
}

// Commit durably advances every watermark.
func (b *BlockDatabase) Commit() error {
	if err := b.records.Commit(); err != nil {
		return err
	}
	if err := b.candidateIndex.Commit(); err != nil {
		return err
	}
	if err := b.confirmedIndex.Commit(); err != nil {
		return err
	}
	return b.txIndex.Commit()
}

// Flush msyncs all four backing files.
func (b *BlockDatabase) Flush() error {
	if err := b.blockStore.Flush(); err != nil {
		return err
	}
	if err := b.candidateIndex.Flush(); err != nil {
		return err
	}
	if err := b.confirmedIndex.Flush(); err != nil {
		return err
	}
	return b.txIndexStore.Flush()
}

// Close unmaps and closes all four backing files.
func (b *BlockDatabase) Close() error {
	cap1, cap2, cap3, cap4 := b.blockStore.Capacity(), b.candidateIndex.store.Capacity(), b.confirmedIndex.store.Capacity(), b.txIndexStore.Capacity()
	err1 := b.blockStore.Close(cap1)
	err2 := b.candidateIndex.store.Close(cap2)
	err3 := b.confirmedIndex.store.Close(cap3)
	err4 := b.txIndexStore.Close(cap4)
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			return err
		}
	}
	return nil
}

func encodeBlockRecord(r BlockRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Header.Serialize(&buf); err != nil {
		return nil, Wrap(err, "chaindb: serialize header")
	}
	out := make([]byte, blockRecordSize)
	copy(out, buf.Bytes())
	o := blockHeaderSize
	binary.LittleEndian.PutUint32(out[o:], r.MedianTimePast)
	o += 4
	binary.LittleEndian.PutUint32(out[o:], r.Checksum)
	o += 4
	out[o] = r.State
	o++
	binary.LittleEndian.PutUint32(out[o:], r.Height)
	o += 4
	encodeLinkN(out[o:], r.TxStart, 4)
	o += 4
	binary.LittleEndian.PutUint32(out[o:], r.TxCount)
	return out, nil
}

func decodeBlockRecord(data []byte) (BlockRecord, error) {
	var r BlockRecord
	if err := r.Header.Deserialize(bytes.NewReader(data[:blockHeaderSize])); err != nil {
		return r, Wrap(err, "chaindb: deserialize header")
	}
	o := blockHeaderSize
	r.MedianTimePast = binary.LittleEndian.Uint32(data[o:])
	o += 4
	r.Checksum = binary.LittleEndian.Uint32(data[o:])
	o += 4
	r.State = data[o]
	o++
	r.Height = binary.LittleEndian.Uint32(data[o:])
	o += 4
	r.TxStart = decodeLinkN(data[o:], 4)
	o += 4
	r.TxCount = binary.LittleEndian.Uint32(data[o:])
	return r, nil
}

// Store creates a pooled, unvalidated record for header at height, with
// an empty transaction association. Not present is a precondition; a
// duplicate hash returns ErrDuplicateBlock.
func (b *BlockDatabase) Store(header wire.BlockHeader, height, medianTimePast uint32) error {
	hash := header.BlockHash()

	if link, err := b.table.Find(hash[:]); err != nil {
		return err
	} else if link != chainstore.NotAllocated {
		return ErrDuplicateBlock
	}

	rec := BlockRecord{
		Header:         header,
		MedianTimePast: medianTimePast,
		State:          statePooled,
		Height:         height,
		TxStart:        chainstore.NotAllocated,
		TxCount:        0,
	}
	body, err := encodeBlockRecord(rec)
	if err != nil {
		return err
	}

	link, err := b.table.Allocator().Create(hash[:], uint64(len(body)), func(dst []byte) { copy(dst, body) })
	if err != nil {
		return Wrap(err, "chaindb: allocate block record")
	}
	return b.table.Link(hash[:], link)
}

// Update populates a pooled block's transaction association: it allocates
// len(txLinks) contiguous slots in the tx-association table, writes each
// tx-database link, and sets tx_start/tx_count. Requires tx_count == 0.
func (b *BlockDatabase) Update(hash chainhash.Hash, txLinks []chainstore.Link) error {
	link, err := b.table.Find(hash[:])
	if err != nil {
		return err
	}
	if link == chainstore.NotAllocated {
		return ErrBlockNotFound
	}

	b.metadataMu.Lock()
	defer b.metadataMu.Unlock()

	acc, err := b.table.Element(link)
	if err != nil {
		return err
	}
	rec, err := decodeBlockRecord(acc.Bytes())
	acc.Release()
	if err != nil {
		return err
	}
	if rec.TxCount != 0 {
		return ErrInvalidState
	}

	var txStart chainstore.Link = chainstore.NotAllocated
	if len(txLinks) > 0 {
		first, err := b.txIndex.Allocate(uint64(len(txLinks)) * txIndexLinkWidth)
		if err != nil {
			return err
		}
		for i, tl := range txLinks {
			slot, err := b.txIndex.Get(first + chainstore.Link(i))
			if err != nil {
				return err
			}
			encodeLinkN(slot.Bytes(), tl, txIndexLinkWidth)
			slot.Release()
		}
		if err := b.txIndex.Commit(); err != nil {
			return err
		}
		txStart = first
	}

	rec.TxStart = txStart
	rec.TxCount = uint32(len(txLinks))
	return b.rewriteLocked(link, rec)
}

// Validate sets the valid/invalid bit exclusively. When setChecksum is
// true (a full-block validation, per spec §4.5), checksum is also stored.
func (b *BlockDatabase) Validate(hash chainhash.Hash, valid bool, setChecksum bool, checksum uint32) error {
	link, err := b.table.Find(hash[:])
	if err != nil {
		return err
	}
	if link == chainstore.NotAllocated {
		return ErrBlockNotFound
	}

	b.metadataMu.Lock()
	defer b.metadataMu.Unlock()

	acc, err := b.table.Element(link)
	if err != nil {
		return err
	}
	rec, err := decodeBlockRecord(acc.Bytes())
	acc.Release()
	if err != nil {
		return err
	}

	rec.State &^= stateValid | stateInvalid
	if valid {
		rec.State |= stateValid
	} else {
		rec.State |= stateInvalid
	}
	if setChecksum {
		rec.Checksum = checksum
	}
	return b.rewriteLocked(link, rec)
}

// Promote moves a pooled header to candidate, or a candidate header to
// confirmed, appending its link to the relevant height index at height.
func (b *BlockDatabase) Promote(hash chainhash.Hash, height uint32, candidate bool) error {
	link, err := b.table.Find(hash[:])
	if err != nil {
		return err
	}
	if link == chainstore.NotAllocated {
		return ErrBlockNotFound
	}

	b.metadataMu.Lock()
	defer b.metadataMu.Unlock()

	acc, err := b.table.Element(link)
	if err != nil {
		return err
	}
	rec, err := decodeBlockRecord(acc.Bytes())
	acc.Release()
	if err != nil {
		return err
	}

	index := b.confirmedIndex
	requiredBit := stateCandidate
	if candidate {
		index = b.candidateIndex
		requiredBit = statePooled
	}
	if rec.State&requiredBit == 0 {
		return ErrInvalidState
	}
	if top, ok := index.Top(); ok && top+1 != height {
		return ErrInvalidHeight
	} else if !ok && height != 0 {
		return ErrInvalidHeight
	}

	rec.State &^= requiredBit
	if candidate {
		rec.State |= stateCandidate
	} else {
		rec.State |= stateConfirmed
	}

	if err := index.Push(link); err != nil {
		return err
	}
	return b.rewriteLocked(link, rec)
}

// Demote reverses Promote: it requires the block to currently sit at the
// top of the relevant height index at height, clears the target bit,
// returns the record to pooled (per spec §4.5 / original_source's
// "pooled|pooled, not candidate" demotion), and truncates the index.
func (b *BlockDatabase) Demote(hash chainhash.Hash, height uint32, candidate bool) error {
	link, err := b.table.Find(hash[:])
	if err != nil {
		return err
	}
	if link == chainstore.NotAllocated {
		return ErrBlockNotFound
	}

	b.metadataMu.Lock()
	defer b.metadataMu.Unlock()

	acc, err := b.table.Element(link)
	if err != nil {
		return err
	}
	rec, err := decodeBlockRecord(acc.Bytes())
	acc.Release()
	if err != nil {
		return err
	}

	index := b.confirmedIndex
	targetBit := stateConfirmed
	if candidate {
		index = b.candidateIndex
		targetBit = stateCandidate
	}
	if rec.State&targetBit == 0 {
		return ErrInvalidState
	}
	if err := index.Pop(height); err != nil {
		return err
	}

	rec.State &^= targetBit
	rec.State |= statePooled
	return b.rewriteLocked(link, rec)
}

// rewriteLocked overwrites an already-allocated element's body in place.
// Caller must hold metadataMu.
func (b *BlockDatabase) rewriteLocked(link chainstore.Link, rec BlockRecord) error {
	body, err := encodeBlockRecord(rec)
	if err != nil {
		return err
	}
	acc, err := b.table.Element(link)
	if err != nil {
		return err
	}
	copy(acc.Bytes(), body)
	acc.Release()
	return nil
}

// Top returns the height at the top of the candidate or confirmed index.
func (b *BlockDatabase) Top(candidate bool) (uint32, bool) {
	if candidate {
		return b.candidateIndex.Top()
	}
	return b.confirmedIndex.Top()
}

// GetByHeight resolves a height through the given index to its block record.
func (b *BlockDatabase) GetByHeight(height uint32, candidate bool) (BlockRecord, chainhash.Hash, error) {
	index := b.confirmedIndex
	if candidate {
		index = b.candidateIndex
	}
	link, err := index.Get(height)
	if err != nil {
		return BlockRecord{}, chainhash.Hash{}, err
	}
	return b.getByRecordLink(link)
}

// GetByHash resolves a block hash through the hash table to its record.
func (b *BlockDatabase) GetByHash(hash chainhash.Hash) (BlockRecord, error) {
	link, err := b.table.Find(hash[:])
	if err != nil {
		return BlockRecord{}, err
	}
	if link == chainstore.NotAllocated {
		return BlockRecord{}, ErrBlockNotFound
	}
	rec, _, err := b.getByRecordLink(link)
	return rec, err
}

func (b *BlockDatabase) getByRecordLink(link chainstore.Link) (BlockRecord, chainhash.Hash, error) {
	b.metadataMu.RLock()
	defer b.metadataMu.RUnlock()

	acc, err := b.table.Element(link)
	if err != nil {
		return BlockRecord{}, chainhash.Hash{}, err
	}
	data := append([]byte(nil), acc.Bytes()[:blockRecordSize]...)
	acc.Release()

	rec, err := decodeBlockRecord(data)
	if err != nil {
		return BlockRecord{}, chainhash.Hash{}, err
	}
	return rec, rec.Header.BlockHash(), nil
}

// TxLinks returns the tx-database links (transaction_table slab offsets)
// associated with a block, via its tx_start/tx_count range in tx_index.
func (b *BlockDatabase) TxLinks(rec BlockRecord) ([]chainstore.Link, error) {
	if rec.TxCount == 0 {
		return nil, nil
	}
	out := make([]chainstore.Link, 0, rec.TxCount)
	for i := uint32(0); i < rec.TxCount; i++ {
		acc, err := b.txIndex.Get(rec.TxStart + chainstore.Link(i))
		if err != nil {
			return nil, err
		}
		out = append(out, decodeLinkN(acc.Bytes(), txIndexLinkWidth))
		acc.Release()
	}
	return out, nil
}
