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
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/log"
)

// Database is the data-base facade (C9): it owns the write mutex/flush
// lock discipline (via Store) and coordinates the block and transaction
// databases through reorganization, grounded on original_source
// data_base.cpp's push/pop/reorganize flows.
type Database struct {
	store        *Store
	blocks       *BlockDatabase
	transactions *TransactionDatabase
	filters      map[uint8]*FilterDatabase

	metrics *metrics
}

// NewDatabase constructs the facade's components (not yet opened). reg may
// be nil to skip metrics registration entirely.
func NewDatabase(settings Settings, reg prometheus.Registerer) (*Database, error) {
	store, err := NewStore(settings)
	if err != nil {
		return nil, err
	}

	blocks, err := OpenBlockDatabase(settings.Directory, settings)
	if err != nil {
		return nil, err
	}
	transactions, err := OpenTransactionDatabase(settings.Directory, settings.TransactionTableBuckets, settings.TransactionTableMinimumSize, settings.FileGrowthRate, settings.CacheCapacity)
	if err != nil {
		return nil, err
	}

	store.register(blocks)
	store.register(transactions)

	return &Database{
		store:        store,
		blocks:       blocks,
		transactions: transactions,
		filters:      make(map[uint8]*FilterDatabase),
		metrics:      newMetrics(reg),
	}, nil
}

// AddFilterDatabase opens and registers an optional compact-filter database
// for filterType. Must be called before Create/Start.
func (d *Database) AddFilterDatabase(filterType uint8, buckets uint32, minimumSize uint64, growthRate uint16) error {
	fd, err := OpenFilterDatabase(d.store.settings.Directory, filterType, buckets, minimumSize, growthRate)
	if err != nil {
		return err
	}
	d.store.register(fd)
	d.filters[filterType] = fd
	return nil
}

// Filter returns the filter database for filterType, or nil if none was added.
func (d *Database) Filter(filterType uint8) *FilterDatabase { return d.filters[filterType] }

// Create initializes a brand-new store directory, creates every
// component, and pushes the genesis block at height 0 with the given
// medianTimePast.
func (d *Database) Create(genesis *wire.MsgBlock, medianTimePast uint32) error {
	if err := d.store.Open(); err != nil {
		return err
	}
	if err := d.blocks.Create(); err != nil {
		return err
	}
	if err := d.transactions.Create(); err != nil {
		return err
	}
	for _, fd := range d.filters {
		if err := fd.Create(); err != nil {
			return err
		}
	}

	txs := make([]*wire.MsgTx, len(genesis.Transactions))
	copy(txs, genesis.Transactions)
	return d.PushBlock(genesis.Header, 0, medianTimePast, txs, nil)
}

// Start opens an existing store directory and rereads every component's
// watermark.
func (d *Database) Start() error {
	if err := d.store.Open(); err != nil {
		return err
	}
	if err := d.blocks.Start(); err != nil {
		return err
	}
	if err := d.transactions.Start(); err != nil {
		return err
	}
	for _, fd := range d.filters {
		if err := fd.Start(); err != nil {
			return err
		}
	}
	log.Info("chaindb: database started", "directory", d.store.settings.Directory)
	return nil
}

// Close closes every component and releases the exclusive lock.
func (d *Database) Close() error {
	if err := d.blocks.Close(); err != nil {
		return err
	}
	if err := d.transactions.Close(); err != nil {
		return err
	}
	for _, fd := range d.filters {
		if err := fd.Close(); err != nil {
			return err
		}
	}
	return d.store.Close()
}

// PushHeader stores a new header as pooled and immediately promotes it to
// candidate at height, the header-only half of spec §4.6's symmetric
// push flows.
func (d *Database) PushHeader(header wire.BlockHeader, height, medianTimePast uint32) (err error) {
	if err = d.store.BeginWrite(); err != nil {
		return err
	}
	defer func() { d.metrics.observeWrite(err) }()

	if err = d.blocks.Store(header, height, medianTimePast); err != nil {
		return err
	}
	hash := header.BlockHash()
	if err = d.blocks.Promote(hash, height, true); err != nil {
		return err
	}
	d.metrics.observePush()
	return d.store.EndWrite()
}

// PushBlock stores (or reuses) the header, associates and confirms every
// transaction, and promotes the header to confirmed at height. catalog, if
// non-nil, is invoked once per not-yet-cataloged transaction (the external
// address/payment index collaborator), per spec §4.6's "push_block
// additionally calls catalog(block) if the payment index is enabled".
func (d *Database) PushBlock(header wire.BlockHeader, height, medianTimePast uint32, txs []*wire.MsgTx, catalog func(*wire.MsgTx) error) (err error) {
	if err = d.store.BeginWrite(); err != nil {
		return err
	}
	defer func() { d.metrics.observeWrite(err) }()

	hash := header.BlockHash()
	rec, findErr := d.blocks.GetByHash(hash)
	switch {
	case findErr == ErrBlockNotFound:
		if err = d.blocks.Store(header, height, medianTimePast); err != nil {
			return err
		}
	case findErr != nil:
		err = findErr
		return err
	default:
		if rec.Confirmed() {
			err = ErrDuplicateBlock
			return err
		}
	}

	if !rec.Candidate() {
		if err = d.blocks.Promote(hash, height, true); err != nil {
			return err
		}
	}

	links := make([]chainstore.Link, len(txs))
	for i, tx := range txs {
		if links[i], err = d.transactions.Store(tx); err != nil {
			return err
		}
	}
	if err = d.blocks.Update(hash, links); err != nil {
		return err
	}
	if err = d.transactions.ConfirmBlock(links, height, medianTimePast); err != nil {
		return err
	}
	if err = d.blocks.Promote(hash, height, false); err != nil {
		return err
	}

	if catalog != nil {
		for i := range txs {
			if err = d.transactions.Catalog(links[i], catalog); err != nil {
				return err
			}
		}
	}

	d.metrics.observePush()
	d.setTopMetrics()
	return d.store.EndWrite()
}

// PopHeader demotes the candidate header at height back to pooled,
// uncandidating every transaction it referenced, per spec §4.6's
// pop_header flow.
func (d *Database) PopHeader(height uint32) (err error) {
	if err = d.store.BeginWrite(); err != nil {
		return err
	}
	defer func() { d.metrics.observeWrite(err) }()

	rec, hash, err := d.blocks.GetByHeight(height, true)
	if err != nil {
		return err
	}
	links, err := d.blocks.TxLinks(rec)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err = d.transactions.Uncandidate(link); err != nil {
			return err
		}
	}
	if err = d.blocks.Demote(hash, height, true); err != nil {
		return err
	}

	d.setTopMetrics()
	return d.store.EndWrite()
}

// PopBlock demotes the confirmed block at height back to pooled,
// unconfirming every transaction it referenced, per spec §4.6's pop_block
// flow.
func (d *Database) PopBlock(height uint32) (err error) {
	if err = d.store.BeginWrite(); err != nil {
		return err
	}
	defer func() { d.metrics.observeWrite(err) }()

	rec, hash, err := d.blocks.GetByHeight(height, false)
	if err != nil {
		return err
	}
	links, err := d.blocks.TxLinks(rec)
	if err != nil {
		return err
	}
	if err = d.transactions.Unconfirm(links); err != nil {
		return err
	}
	if err = d.blocks.Demote(hash, height, false); err != nil {
		return err
	}

	d.setTopMetrics()
	return d.store.EndWrite()
}

// ForkPoint identifies where an incoming chain diverges from the current
// index: the height at which both chains still agree on the block hash.
type ForkPoint struct {
	Height uint32
	Hash   chainhash.Hash
}

// PopAbove verifies fork-point integrity (the record at ForkPoint.Height
// must hash to ForkPoint.Hash) and pops every block above it down to
// ForkPoint.Height+1, returning the popped hashes in ascending height
// order, per spec §4.6's pop_above.
func (d *Database) PopAbove(candidate bool, fork ForkPoint) ([]chainhash.Hash, error) {
	top, ok := d.blocks.Top(candidate)
	if !ok || top < fork.Height {
		return nil, ErrEmptyStack
	}

	_, atForkHash, err := d.blocks.GetByHeight(fork.Height, candidate)
	if err != nil {
		return nil, err
	}
	if atForkHash != fork.Hash {
		return nil, ErrInvalidHeight
	}

	var popped []chainhash.Hash
	for h := top; h > fork.Height; h-- {
		_, hash, err := d.blocks.GetByHeight(h, candidate)
		if err != nil {
			return nil, err
		}

		if candidate {
			err = d.PopHeader(h)
		} else {
			err = d.PopBlock(h)
		}
		if err != nil {
			return nil, err
		}
		popped = append([]chainhash.Hash{hash}, popped...)
	}

	d.metrics.observeReorg(len(popped))
	return popped, nil
}

// IncomingHeader is one element of a header-only push_all sequence.
type IncomingHeader struct {
	Header         wire.BlockHeader
	MedianTimePast uint32
}

// IncomingBlock is one element of a full-block push_all sequence.
type IncomingBlock struct {
	Header         wire.BlockHeader
	MedianTimePast uint32
	Transactions   []*wire.MsgTx
}

// PushAllHeaders pushes each incoming header in order at successive
// heights starting fork.Height+1, per spec §4.6's push_all.
func (d *Database) PushAllHeaders(fork ForkPoint, incoming []IncomingHeader) error {
	for i, h := range incoming {
		if err := d.PushHeader(h.Header, fork.Height+1+uint32(i), h.MedianTimePast); err != nil {
			return err
		}
	}
	return nil
}

// PushAllBlocks pushes each incoming block in order at successive heights
// starting fork.Height+1.
func (d *Database) PushAllBlocks(fork ForkPoint, incoming []IncomingBlock, catalog func(*wire.MsgTx) error) error {
	for i, b := range incoming {
		height := fork.Height + 1 + uint32(i)
		if err := d.PushBlock(b.Header, height, b.MedianTimePast, b.Transactions, catalog); err != nil {
			return err
		}
	}
	return nil
}

// ReorganizeHeaders performs the header-only reorg flow: pop down to fork,
// then push the incoming header chain.
func (d *Database) ReorganizeHeaders(fork ForkPoint, incoming []IncomingHeader) ([]chainhash.Hash, error) {
	outgoing, err := d.PopAbove(true, fork)
	if err != nil {
		return nil, err
	}
	if err := d.PushAllHeaders(fork, incoming); err != nil {
		return outgoing, err
	}
	return outgoing, nil
}

// ReorganizeBlocks performs the full-block reorg flow: pop down to fork,
// then push the incoming full-block chain.
func (d *Database) ReorganizeBlocks(fork ForkPoint, incoming []IncomingBlock, catalog func(*wire.MsgTx) error) ([]chainhash.Hash, error) {
	outgoing, err := d.PopAbove(false, fork)
	if err != nil {
		return nil, err
	}
	if err := d.PushAllBlocks(fork, incoming, catalog); err != nil {
		return outgoing, err
	}
	return outgoing, nil
}

// Top returns the height at the top of the candidate or confirmed index.
func (d *Database) Top(candidate bool) (uint32, bool) { return d.blocks.Top(candidate) }

// GetByHeight resolves a height through the given index to its block record.
func (d *Database) GetByHeight(height uint32, candidate bool) (BlockRecord, chainhash.Hash, error) {
	return d.blocks.GetByHeight(height, candidate)
}

// GetByHash resolves a block hash to its record.
func (d *Database) GetByHash(hash chainhash.Hash) (BlockRecord, error) { return d.blocks.GetByHash(hash) }

// Transaction returns the transaction database, for read paths that don't
// need the facade's write coordination (e.g. mempool lookups).
func (d *Database) Transaction() *TransactionDatabase { return d.transactions }

func (d *Database) setTopMetrics() {
	candidateTop, _ := d.blocks.Top(true)
	confirmedTop, _ := d.blocks.Top(false)
	d.metrics.setTops(candidateTop, confirmedTop)
}
