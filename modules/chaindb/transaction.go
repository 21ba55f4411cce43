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
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/hashtable"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/slab"
)

const (
	notConfirmedHeight uint32 = 0xFFFFFFFF // height sentinel: not in any block
	notInBlockPosition uint32 = 0xFFFFFFFF // position sentinel: not in any block ("pooled")
	notSpentHeight     uint32 = 0xFFFFFFFF // spender_height sentinel: output unspent

	txLinkWidth = 8 // transaction_table is slab-backed: byte offsets
	spenderSize = 5 // spender_height(u32) + candidate_spent(u8)
)

// spenderMeta is the per-output spend-tracking tuple.
type spenderMeta struct {
	SpenderHeight  uint32
	CandidateSpent bool
}

// TransactionRecord is the decoded, in-memory form of a stored transaction.
type TransactionRecord struct {
	Tx             wire.MsgTx
	MedianTimePast uint32
	Height         uint32
	Position       uint32
	Cataloged      bool
	Spenders       []spenderMeta
}

// Pooled reports whether the transaction has never been confirmed in a
// block (spec §4.4: "pooled iff height == max").
func (r TransactionRecord) Pooled() bool { return r.Height == notConfirmedHeight }

// Confirmed reports whether the record carries a confirmed height. The
// full spec definition ("a confirmed block at height references it") is
// owned by the block database's confirmed index; here it is the record's
// own view of the height field, which Confirm/Unconfirm keep consistent
// with that index under the facade's write discipline.
func (r TransactionRecord) Confirmed() bool { return r.Height != notConfirmedHeight }

// TransactionDatabase is the transaction ledger (C6): a slab-backed hash
// table keyed by transaction hash, storing the serialized transaction body
// alongside its confirmation state and per-output spend metadata.
type TransactionDatabase struct {
	store   *filestore.Store
	manager *slab.Manager
	table   *hashtable.Table

	// metadataMu guards height/position/cataloged/spender mutations
	// across the whole table, per spec §4.4/§5.
	metadataMu sync.RWMutex

	cache *unspentCache
}

// OpenTransactionDatabase opens (but does not Create/Start) the backing
// transaction_table file under dir.
func OpenTransactionDatabase(dir string, buckets uint32, minimumSize uint64, growthRate uint16, cacheCapacity uint32) (*TransactionDatabase, error) {
	store, err := filestore.Open(filepath.Join(dir, "transaction_table"), minimumSize, growthRate)
	if err != nil {
		return nil, Wrap(err, "chaindb: open transaction_table")
	}

	header := hashtable.HeaderSize(buckets, txLinkWidth)
	manager := slab.New(store, header)
	table := hashtable.New(store, manager, buckets, txLinkWidth, chainhash.HashSize)

	return &TransactionDatabase{
		store:   store,
		manager: manager,
		table:   table,
		cache:   newUnspentCache(cacheCapacity),
	}, nil
}

func (d *TransactionDatabase) Create() error { return d.table.Create() }
func (d *TransactionDatabase) Start() error  { return d.table.Start() }
func (d *TransactionDatabase) Commit() error { return d.manager.Commit() }
func (d *TransactionDatabase) Flush() error  { return d.store.Flush() }
func (d *TransactionDatabase) Close() error  { return d.store.Close(d.store.Capacity()) }

func encodeTransactionRecord(r TransactionRecord) ([]byte, error) {
	var txBuf bytes.Buffer
	if err := r.Tx.Serialize(&txBuf); err != nil {
		return nil, Wrap(err, "chaindb: serialize transaction")
	}

	var out bytes.Buffer
	if err := wire.WriteVarInt(&out, 0, uint64(txBuf.Len())); err != nil {
		return nil, Wrap(err, "chaindb: encode tx length")
	}
	out.Write(txBuf.Bytes())

	var fixed [4 + 4 + 4 + 1]byte
	binary.LittleEndian.PutUint32(fixed[0:], r.MedianTimePast)
	binary.LittleEndian.PutUint32(fixed[4:], r.Height)
	binary.LittleEndian.PutUint32(fixed[8:], r.Position)
	if r.Cataloged {
		fixed[12] = 1
	}
	out.Write(fixed[:])

	for _, s := range r.Spenders {
		var sb [spenderSize]byte
		binary.LittleEndian.PutUint32(sb[0:], s.SpenderHeight)
		if s.CandidateSpent {
			sb[4] = 1
		}
		out.Write(sb[:])
	}
	return out.Bytes(), nil
}

func decodeTransactionRecord(data []byte) (TransactionRecord, error) {
	var r TransactionRecord
	reader := bytes.NewReader(data)

	n, err := wire.ReadVarInt(reader, 0)
	if err != nil {
		return r, Wrap(err, "chaindb: read tx length")
	}
	txBytes := make([]byte, n)
	if _, err := reader.Read(txBytes); err != nil {
		return r, Wrap(err, "chaindb: read tx body")
	}
	if err := r.Tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return r, Wrap(err, "chaindb: deserialize transaction")
	}

	var fixed [4 + 4 + 4 + 1]byte
	if _, err := reader.Read(fixed[:]); err != nil {
		return r, Wrap(err, "chaindb: read tx metadata")
	}
	r.MedianTimePast = binary.LittleEndian.Uint32(fixed[0:])
	r.Height = binary.LittleEndian.Uint32(fixed[4:])
	r.Position = binary.LittleEndian.Uint32(fixed[8:])
	r.Cataloged = fixed[12] != 0

	r.Spenders = make([]spenderMeta, len(r.Tx.TxOut))
	for i := range r.Spenders {
		var sb [spenderSize]byte
		if _, err := reader.Read(sb[:]); err != nil {
			return r, Wrap(err, "chaindb: read spender metadata")
		}
		r.Spenders[i] = spenderMeta{
			SpenderHeight:  binary.LittleEndian.Uint32(sb[0:]),
			CandidateSpent: sb[4] != 0,
		}
	}
	return r, nil
}

// Store inserts tx if its hash is not already present, returning its link.
// If already present, per spec §4.4 this is idempotent: the existing link
// is returned and nothing is rewritten.
func (d *TransactionDatabase) Store(tx *wire.MsgTx) (chainstore.Link, error) {
	hash := tx.TxHash()

	link, err := d.table.Find(hash[:])
	if err != nil {
		return chainstore.NotAllocated, err
	}
	if link != chainstore.NotAllocated {
		return link, nil
	}

	rec := TransactionRecord{
		Tx:             *tx,
		Height:         notConfirmedHeight,
		Position:       notInBlockPosition,
		Spenders:       make([]spenderMeta, len(tx.TxOut)),
	}
	for i := range rec.Spenders {
		rec.Spenders[i].SpenderHeight = notSpentHeight
	}

	body, err := encodeTransactionRecord(rec)
	if err != nil {
		return chainstore.NotAllocated, err
	}

	link, err = d.table.Allocator().Create(hash[:], uint64(len(body)), func(dst []byte) { copy(dst, body) })
	if err != nil {
		return chainstore.NotAllocated, Wrap(err, "chaindb: allocate transaction")
	}
	if err := d.table.Link(hash[:], link); err != nil {
		return chainstore.NotAllocated, err
	}
	return link, nil
}

// StoreList stores every transaction in txs, returning false (with no
// error) only if none of them were new. Matches spec's `store(tx-list) →
// bool` surface.
func (d *TransactionDatabase) StoreList(txs []*wire.MsgTx) (bool, error) {
	any := false
	for _, tx := range txs {
		hash := tx.TxHash()
		existing, err := d.table.Find(hash[:])
		if err != nil {
			return any, err
		}
		if _, err := d.Store(tx); err != nil {
			return any, err
		}
		if existing == chainstore.NotAllocated {
			any = true
		}
	}
	return any, nil
}

// Get returns the record at link.
func (d *TransactionDatabase) Get(link chainstore.Link) (TransactionRecord, error) {
	d.metadataMu.RLock()
	defer d.metadataMu.RUnlock()
	return d.getLocked(link)
}

func (d *TransactionDatabase) getLocked(link chainstore.Link) (TransactionRecord, error) {
	acc, err := d.table.Element(link)
	if err != nil {
		return TransactionRecord{}, err
	}
	data := append([]byte(nil), acc.Bytes()...)
	acc.Release()
	return decodeTransactionRecord(data)
}

// GetByHash resolves hash to its record and link.
func (d *TransactionDatabase) GetByHash(hash chainhash.Hash) (TransactionRecord, chainstore.Link, error) {
	link, err := d.table.Find(hash[:])
	if err != nil {
		return TransactionRecord{}, chainstore.NotAllocated, err
	}
	if link == chainstore.NotAllocated {
		return TransactionRecord{}, chainstore.NotAllocated, ErrTxNotFound
	}
	rec, err := d.Get(link)
	return rec, link, err
}

// rewriteLocked overwrites an already-allocated element's body in place. The new
// record must encode to exactly the same length as what is already
// stored (true for every mutation this type performs: only fixed-width
// fields change). Caller must hold metadataMu.
func (d *TransactionDatabase) rewriteLocked(link chainstore.Link, rec TransactionRecord) error {
	body, err := encodeTransactionRecord(rec)
	if err != nil {
		return err
	}
	acc, err := d.table.Element(link)
	if err != nil {
		return err
	}
	copy(acc.Bytes(), body)
	acc.Release()
	return nil
}

// setSpentLocked sets (or clears) the spend tuple of the outputIndex'th
// output of the transaction identified by prevoutHash. Caller must hold
// metadataMu.
func (d *TransactionDatabase) setSpentLocked(prevoutHash chainhash.Hash, outputIndex uint32, height uint32, candidateSpent *bool) error {
	// A coinbase input spends no stored output: nothing to mark.
	if outputIndex == wire.MaxPrevOutIndex && prevoutHash == (chainhash.Hash{}) {
		return nil
	}

	link, err := d.table.Find(prevoutHash[:])
	if err != nil {
		return err
	}
	if link == chainstore.NotAllocated {
		return ErrPrevoutNotFound
	}

	rec, err := d.getLocked(link)
	if err != nil {
		return err
	}
	if int(outputIndex) >= len(rec.Spenders) {
		return ErrPrevoutNotFound
	}

	if candidateSpent != nil {
		rec.Spenders[outputIndex].CandidateSpent = *candidateSpent
	} else {
		rec.Spenders[outputIndex].SpenderHeight = height
	}
	d.cache.invalidate(prevoutHash)
	return d.rewriteLocked(link, rec)
}

// Confirm overwrites height/mtp/position in place and marks every prevout
// this transaction spends as spent at height.
func (d *TransactionDatabase) Confirm(link chainstore.Link, height, medianTimePast, position uint32) error {
	d.metadataMu.Lock()
	defer d.metadataMu.Unlock()

	rec, err := d.getLocked(link)
	if err != nil {
		return err
	}
	rec.Height = height
	rec.MedianTimePast = medianTimePast
	rec.Position = position
	if err := d.rewriteLocked(link, rec); err != nil {
		return err
	}

	for _, in := range rec.Tx.TxIn {
		if err := d.setSpentLocked(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, height, nil); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmBlock confirms every transaction in links, in order, at height.
func (d *TransactionDatabase) ConfirmBlock(links []chainstore.Link, height, medianTimePast uint32) error {
	for i, link := range links {
		if err := d.Confirm(link, height, medianTimePast, uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

// Unconfirm resets height/position to their sentinels and clears
// spender-height on every input's prevout, walking links in reverse per
// spec §4.4.
func (d *TransactionDatabase) Unconfirm(links []chainstore.Link) error {
	for i := len(links) - 1; i >= 0; i-- {
		if err := d.unconfirmOne(links[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *TransactionDatabase) unconfirmOne(link chainstore.Link) error {
	d.metadataMu.Lock()
	defer d.metadataMu.Unlock()

	rec, err := d.getLocked(link)
	if err != nil {
		return err
	}
	rec.Height = notConfirmedHeight
	rec.Position = notInBlockPosition
	if err := d.rewriteLocked(link, rec); err != nil {
		return err
	}

	for _, in := range rec.Tx.TxIn {
		if err := d.setSpentLocked(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, notSpentHeight, nil); err != nil {
			return err
		}
	}
	return nil
}

// Candidate marks every prevout this transaction spends as candidate-spent,
// without touching height/position.
func (d *TransactionDatabase) Candidate(link chainstore.Link) error {
	return d.setCandidateSpent(link, true)
}

// Uncandidate clears candidate_spent on every prevout this transaction
// spends.
func (d *TransactionDatabase) Uncandidate(link chainstore.Link) error {
	return d.setCandidateSpent(link, false)
}

func (d *TransactionDatabase) setCandidateSpent(link chainstore.Link, spent bool) error {
	d.metadataMu.Lock()
	defer d.metadataMu.Unlock()

	rec, err := d.getLocked(link)
	if err != nil {
		return err
	}
	for _, in := range rec.Tx.TxIn {
		if err := d.setSpentLocked(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, 0, &spent); err != nil {
			return err
		}
	}
	return nil
}

// Catalog invokes fn exactly once for tx's link, the first time it is
// called for a given hash, and marks the record cataloged under the
// metadata mutex. fn is the external address/payment index collaborator;
// this type only owns the cataloged flag's exactly-once guarantee.
func (d *TransactionDatabase) Catalog(link chainstore.Link, fn func(*wire.MsgTx) error) error {
	d.metadataMu.Lock()
	defer d.metadataMu.Unlock()

	rec, err := d.getLocked(link)
	if err != nil {
		return err
	}
	if rec.Cataloged {
		return nil
	}
	if err := fn(&rec.Tx); err != nil {
		return err
	}
	rec.Cataloged = true
	return d.rewriteLocked(link, rec)
}
