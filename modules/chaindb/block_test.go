// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package chaindb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
)

func newTestBlockDatabase(t *testing.T) *BlockDatabase {
	t.Helper()
	s := DefaultSettings(filepath.Join(t.TempDir(), "blocks"))
	s.BlockTableBuckets = 7
	require.NoError(t, s.Validate())

	db, err := OpenBlockDatabase(s.Directory, s)
	require.NoError(t, err)
	require.NoError(t, db.Create())
	t.Cleanup(func() { db.Close() })
	return db
}

func testHeader(nonce uint32) wire.BlockHeader {
	return wire.BlockHeader{Version: 1, Nonce: nonce}
}

func TestStoreAndGetByHash(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(1)

	require.NoError(t, db.Store(header, 0, 1000))

	rec, err := db.GetByHash(header.BlockHash())
	require.NoError(t, err)
	require.True(t, rec.Pooled())
	require.False(t, rec.Candidate())
	require.False(t, rec.Confirmed())
	require.Equal(t, uint32(0), rec.Height)
	require.Equal(t, uint32(1000), rec.MedianTimePast)
}

func TestStoreDuplicateRejected(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(2)
	require.NoError(t, db.Store(header, 0, 0))
	require.ErrorIs(t, db.Store(header, 0, 0), ErrDuplicateBlock)
}

func TestGetByHashMissingReturnsNotFound(t *testing.T) {
	db := newTestBlockDatabase(t)
	_, err := db.GetByHash(testHeader(99).BlockHash())
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPromoteToCandidateThenConfirmed(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(3)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))

	require.NoError(t, db.Promote(hash, 0, true))
	rec, err := db.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Candidate())
	require.False(t, rec.Pooled())

	top, ok := db.Top(true)
	require.True(t, ok)
	require.Equal(t, uint32(0), top)

	require.NoError(t, db.Promote(hash, 0, false))
	rec, err = db.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Confirmed())
	require.False(t, rec.Candidate())

	top, ok = db.Top(false)
	require.True(t, ok)
	require.Equal(t, uint32(0), top)
}

func TestPromoteRejectsWrongHeight(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(4)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))

	require.ErrorIs(t, db.Promote(hash, 5, true), ErrInvalidHeight)
}

func TestDemoteCandidateReturnsToPooled(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(5)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))
	require.NoError(t, db.Promote(hash, 0, true))

	require.NoError(t, db.Demote(hash, 0, true))

	rec, err := db.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Pooled())
	require.False(t, rec.Candidate())

	_, ok := db.Top(true)
	require.False(t, ok)
}

func TestDemoteConfirmedReturnsToPooled(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(6)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))
	require.NoError(t, db.Promote(hash, 0, true))
	require.NoError(t, db.Promote(hash, 0, false))

	require.NoError(t, db.Demote(hash, 0, false))

	rec, err := db.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Pooled())
	require.False(t, rec.Confirmed())
}

func TestValidateSetsExclusiveBit(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(7)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))

	require.NoError(t, db.Validate(hash, true, true, 0xdeadbeef))
	rec, err := db.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Valid())
	require.False(t, rec.Invalid())
	require.Equal(t, uint32(0xdeadbeef), rec.Checksum)

	require.NoError(t, db.Validate(hash, false, false, 0))
	rec, err = db.GetByHash(hash)
	require.NoError(t, err)
	require.False(t, rec.Valid())
	require.True(t, rec.Invalid())
	require.Equal(t, uint32(0xdeadbeef), rec.Checksum) // unchanged when setChecksum is false
}

func TestUpdateStoresTxLinksAndTxLinksRoundTrip(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(8)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))

	links := []chainstore.Link{10, 20, 30}
	require.NoError(t, db.Update(hash, links))

	rec, err := db.GetByHash(hash)
	require.NoError(t, err)
	require.Equal(t, uint32(3), rec.TxCount)

	got, err := db.TxLinks(rec)
	require.NoError(t, err)
	require.Equal(t, links, got)
}

func TestUpdateRejectsSecondCall(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(9)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))
	require.NoError(t, db.Update(hash, []chainstore.Link{1}))

	require.ErrorIs(t, db.Update(hash, []chainstore.Link{2}), ErrInvalidState)
}

func TestGetByHeightResolvesThroughIndex(t *testing.T) {
	db := newTestBlockDatabase(t)
	header := testHeader(10)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))
	require.NoError(t, db.Promote(hash, 0, true))

	rec, gotHash, err := db.GetByHeight(0, true)
	require.NoError(t, err)
	require.Equal(t, hash, gotHash)
	require.True(t, rec.Candidate())
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings(dir)
	s.BlockTableBuckets = 7
	require.NoError(t, s.Validate())

	db, err := OpenBlockDatabase(dir, s)
	require.NoError(t, err)
	require.NoError(t, db.Create())

	header := testHeader(11)
	hash := header.BlockHash()
	require.NoError(t, db.Store(header, 0, 0))
	require.NoError(t, db.Promote(hash, 0, true))
	require.NoError(t, db.Commit())
	require.NoError(t, db.Close())

	db2, err := OpenBlockDatabase(dir, s)
	require.NoError(t, err)
	require.NoError(t, db2.Start())
	t.Cleanup(func() { db2.Close() })

	rec, err := db2.GetByHash(hash)
	require.NoError(t, err)
	require.True(t, rec.Candidate())

	top, ok := db2.Top(true)
	require.True(t, ok)
	require.Equal(t, uint32(0), top)
}
