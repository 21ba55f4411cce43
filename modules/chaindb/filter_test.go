// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package chaindb

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func newTestFilterDatabase(t *testing.T) *FilterDatabase {
	t.Helper()
	db, err := OpenFilterDatabase(t.TempDir(), 0, 7, 0, 50)
	require.NoError(t, err)
	require.NoError(t, db.Create())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFilterStoreAndGet(t *testing.T) {
	db := newTestFilterDatabase(t)
	hash := chainhash.Hash{1, 2, 3}
	filter := []byte("a compact filter payload")

	require.NoError(t, db.Store(hash, filter))

	got, err := db.Get(hash)
	require.NoError(t, err)
	require.Equal(t, filter, got)
}

func TestFilterGetMissingReturnsNotFound(t *testing.T) {
	db := newTestFilterDatabase(t)
	_, err := db.Get(chainhash.Hash{9, 9})
	require.ErrorIs(t, err, ErrFilterNotFound)
}

func TestFilterCheckpointsAreCallerSupplied(t *testing.T) {
	db := newTestFilterDatabase(t)
	require.Empty(t, db.Checkpoints())

	cps := []chainhash.Hash{{1}, {2}, {3}}
	db.SetCheckpoints(cps)
	require.Equal(t, cps, db.Checkpoints())
}

func TestFilterPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenFilterDatabase(dir, 0, 7, 0, 50)
	require.NoError(t, err)
	require.NoError(t, db.Create())

	hash := chainhash.Hash{4, 5, 6}
	filter := []byte("persisted filter bytes")
	require.NoError(t, db.Store(hash, filter))
	require.NoError(t, db.Commit())
	require.NoError(t, db.Close())

	db2, err := OpenFilterDatabase(dir, 0, 7, 0, 50)
	require.NoError(t, err)
	require.NoError(t, db2.Start())
	t.Cleanup(func() { db2.Close() })

	got, err := db2.Get(hash)
	require.NoError(t, err)
	require.Equal(t, filter, got)
}
