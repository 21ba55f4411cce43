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

	"github.com/n42blockchain/ledgerstore/internal/cache"
)

// CachedOutput is the cached view of a single transaction output, enough
// to populate a spend check without a slab read.
type CachedOutput struct {
	Value    int64
	PkScript []byte
}

// cachedTx is an entire transaction's outputs plus the confirmation state
// they were added under, mirroring original_source's unspent_outputs entry
// (test/unspent_outputs.cpp: height, median_time_past, confirmed carried
// once per transaction, not per output).
type cachedTx struct {
	Height         uint32
	MedianTimePast uint32
	Confirmed      bool
	Outputs        map[uint32]CachedOutput
}

// unspentCache is the unspent-output cache (C6): a bounded LRU keyed by
// transaction hash. A zero capacity disables it entirely — per
// original_source's `unspent_outputs(0).disabled()` — rather than running
// a zero-capacity LRU that evicts every insert.
type unspentCache struct {
	inner *cache.LRU[chainhash.Hash, cachedTx]
}

func newUnspentCache(capacity uint32) *unspentCache {
	if capacity == 0 {
		return &unspentCache{}
	}
	return &unspentCache{inner: cache.NewLRU[chainhash.Hash, cachedTx](int(capacity))}
}

func (c *unspentCache) disabled() bool { return c.inner == nil }

// add populates the cache with every output of tx.
func (c *unspentCache) add(tx *wire.MsgTx, height, medianTimePast uint32, confirmed bool) {
	if c.disabled() || len(tx.TxOut) == 0 {
		return
	}
	outputs := make(map[uint32]CachedOutput, len(tx.TxOut))
	for i, out := range tx.TxOut {
		outputs[uint32(i)] = CachedOutput{Value: out.Value, PkScript: out.PkScript}
	}
	c.inner.Set(tx.TxHash(), cachedTx{Height: height, MedianTimePast: medianTimePast, Confirmed: confirmed, Outputs: outputs})
}

// populate looks up a single output of a cached transaction.
func (c *unspentCache) populate(hash chainhash.Hash, index uint32) (CachedOutput, uint32, uint32, bool, bool) {
	if c.disabled() {
		return CachedOutput{}, 0, 0, false, false
	}
	entry, ok := c.inner.Get(hash)
	if !ok {
		return CachedOutput{}, 0, 0, false, false
	}
	out, ok := entry.Outputs[index]
	if !ok {
		return CachedOutput{}, 0, 0, false, false
	}
	return out, entry.Height, entry.MedianTimePast, entry.Confirmed, true
}

// invalidate drops every cached output of hash. Used whenever any of a
// transaction's spend metadata changes, since the cache does not track
// per-output spend state (only the value/script needed to re-populate).
func (c *unspentCache) invalidate(hash chainhash.Hash) {
	if c.disabled() {
		return
	}
	c.inner.Delete(hash)
}
