// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package chaindb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func newTestSettings(t *testing.T) Settings {
	t.Helper()
	s := DefaultSettings(filepath.Join(t.TempDir(), "chain"))
	s.BlockTableBuckets = 7
	s.TransactionTableBuckets = 7
	require.NoError(t, s.Validate())
	return s
}

func genesisBlock() *wire.MsgBlock {
	block := wire.NewMsgBlock(&wire.BlockHeader{Version: 1})
	block.AddTransaction(coinbaseLikeTx(0))
	return block
}

func TestCreateInsertsGenesisAtHeightZero(t *testing.T) {
	s := newTestSettings(t)
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)

	genesis := genesisBlock()
	require.NoError(t, db.Create(genesis, 0))
	t.Cleanup(func() { db.Close() })

	top, ok := db.Top(false)
	require.True(t, ok)
	require.Equal(t, uint32(0), top)

	rec, err := db.GetByHash(genesis.Header.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Confirmed())
}

func TestPushHeaderThenPopHeaderRoundTrip(t *testing.T) {
	s := newTestSettings(t)
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(genesisBlock(), 0))
	t.Cleanup(func() { db.Close() })

	header := wire.BlockHeader{Version: 1, Nonce: 42}
	require.NoError(t, db.PushHeader(header, 1, 1000))

	top, ok := db.Top(true)
	require.True(t, ok)
	require.Equal(t, uint32(1), top)

	require.NoError(t, db.PopHeader(1))

	rec, err := db.GetByHash(header.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Pooled())

	// Genesis stays at candidate height 0.
	top, ok = db.Top(true)
	require.True(t, ok)
	require.Equal(t, uint32(0), top)
}

func TestPushBlockConfirmsTransactions(t *testing.T) {
	s := newTestSettings(t)
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(genesisBlock(), 0))
	t.Cleanup(func() { db.Close() })

	header := wire.BlockHeader{Version: 1, Nonce: 7}
	tx := coinbaseLikeTx(7)
	require.NoError(t, db.PushBlock(header, 1, 1000, []*wire.MsgTx{tx}, nil))

	rec, err := db.GetByHash(header.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Confirmed())
	require.Equal(t, uint32(1), rec.TxCount)

	txRec, _, err := db.transactions.GetByHash(tx.TxHash())
	require.NoError(t, err)
	require.True(t, txRec.Confirmed())
	require.Equal(t, uint32(1), txRec.Height)
}

func TestPopBlockUnconfirmsTransactions(t *testing.T) {
	s := newTestSettings(t)
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(genesisBlock(), 0))
	t.Cleanup(func() { db.Close() })

	header := wire.BlockHeader{Version: 1, Nonce: 8}
	tx := coinbaseLikeTx(8)
	require.NoError(t, db.PushBlock(header, 1, 1000, []*wire.MsgTx{tx}, nil))
	require.NoError(t, db.PopBlock(1))

	txRec, _, err := db.transactions.GetByHash(tx.TxHash())
	require.NoError(t, err)
	require.True(t, txRec.Pooled())

	rec, err := db.GetByHash(header.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Pooled())
}

func TestReorganizeBlocksPopsThenPushes(t *testing.T) {
	s := newTestSettings(t)
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)
	genesis := genesisBlock()
	require.NoError(t, db.Create(genesis, 0))
	t.Cleanup(func() { db.Close() })

	oldHeader := wire.BlockHeader{Version: 1, Nonce: 10}
	require.NoError(t, db.PushBlock(oldHeader, 1, 1000, nil, nil))

	fork := ForkPoint{Height: 0, Hash: genesis.Header.BlockHash()}
	newHeader := wire.BlockHeader{Version: 1, Nonce: 11}
	outgoing, err := db.ReorganizeBlocks(fork, []IncomingBlock{{Header: newHeader, MedianTimePast: 2000}}, nil)
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{oldHeader.BlockHash()}, outgoing)

	top, ok := db.Top(false)
	require.True(t, ok)
	require.Equal(t, uint32(1), top)

	rec, err := db.GetByHash(newHeader.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Confirmed())

	_, err = db.GetByHash(oldHeader.BlockHash())
	require.NoError(t, err) // old block record still exists, just demoted
}

func TestOpenTwiceReportsStoreLocked(t *testing.T) {
	s := newTestSettings(t)
	db1, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.NoError(t, db1.Create(genesisBlock(), 0))
	t.Cleanup(func() { db1.Close() })

	db2, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.ErrorIs(t, db2.Start(), ErrStoreLocked)
}

func TestUncleanShutdownDetectedOnRestart(t *testing.T) {
	s := newTestSettings(t)
	s.FlushWrites = true
	db, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(genesisBlock(), 0))

	// Simulate a crash mid-write: leave the flush lock sentinel in place
	// by calling BeginWrite without a matching EndWrite, then release the
	// exclusive lock as the OS would on process death.
	require.NoError(t, db.store.BeginWrite())
	require.NoError(t, db.store.exclusive.Unlock())

	db2, err := NewDatabase(s, nil)
	require.NoError(t, err)
	require.ErrorIs(t, db2.Start(), ErrUncleanShutdown)
}
