// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package hashtable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/slab"
)

const testBuckets = 7
const testKeySize = 8

func newTestTable(t *testing.T) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.dat")
	store, err := filestore.Open(path, 0, 50)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(store.Capacity()) })

	header := HeaderSize(testBuckets, 8)
	mgr := slab.New(store, header)
	table := New(store, mgr, testBuckets, 8, testKeySize)
	require.NoError(t, table.Create())
	return table
}

func key(n uint64) []byte {
	b := make([]byte, testKeySize)
	for i := 0; i < testKeySize; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func insert(t *testing.T, table *Table, k []byte, value []byte) chainstore.Link {
	t.Helper()
	link, err := table.Allocator().Create(k, uint64(len(value)), func(body []byte) {
		copy(body, value)
	})
	require.NoError(t, err)
	require.NoError(t, table.Link(k, link))
	return link
}

func TestFindMissingKeyReturnsNotAllocated(t *testing.T) {
	table := newTestTable(t)
	link, err := table.Find(key(1))
	require.NoError(t, err)
	require.Equal(t, chainstore.NotAllocated, link)
}

func TestInsertAndFind(t *testing.T) {
	table := newTestTable(t)
	k := key(42)
	insert(t, table, k, []byte("payload1"))

	link, err := table.Find(k)
	require.NoError(t, err)
	require.NotEqual(t, chainstore.NotAllocated, link)

	acc, err := table.Element(link)
	require.NoError(t, err)
	require.Equal(t, "payload1", string(acc.Bytes()[:8]))
	acc.Release()
}

func TestCollisionChainWalksToSecondElement(t *testing.T) {
	table := newTestTable(t)

	// Two keys whose low 4 bytes collide mod testBuckets by construction:
	// same low 32 bits, differing high 32 bits used only for comparison.
	k1 := key(1)
	k2 := append([]byte{}, k1...)
	k2[4] = 0xff // keeps hash bucket identical (hash reads first 4 bytes), key bytes differ

	insert(t, table, k1, []byte("firstval"))
	insert(t, table, k2, []byte("secondvl"))

	link1, err := table.Find(k1)
	require.NoError(t, err)
	acc1, err := table.Element(link1)
	require.NoError(t, err)
	require.Equal(t, "firstval", string(acc1.Bytes()[:8]))
	acc1.Release()

	link2, err := table.Find(k2)
	require.NoError(t, err)
	acc2, err := table.Element(link2)
	require.NoError(t, err)
	require.Equal(t, "secondvl", string(acc2.Bytes()[:8]))
	acc2.Release()
}

func TestUnlinkRemovesHeadOfChain(t *testing.T) {
	table := newTestTable(t)
	k := key(7)
	insert(t, table, k, []byte("removeme"))

	found, err := table.Unlink(k)
	require.NoError(t, err)
	require.True(t, found)

	link, err := table.Find(k)
	require.NoError(t, err)
	require.Equal(t, chainstore.NotAllocated, link)
}

func TestUnlinkRemovesSecondElementPreservingFirst(t *testing.T) {
	table := newTestTable(t)
	k1 := key(1)
	k2 := append([]byte{}, k1...)
	k2[4] = 0xff

	insert(t, table, k1, []byte("firstval"))
	insert(t, table, k2, []byte("secondvl"))

	found, err := table.Unlink(k2)
	require.NoError(t, err)
	require.True(t, found)

	link1, err := table.Find(k1)
	require.NoError(t, err)
	require.NotEqual(t, chainstore.NotAllocated, link1)

	link2, err := table.Find(k2)
	require.NoError(t, err)
	require.Equal(t, chainstore.NotAllocated, link2)
}

func TestUnlinkMissingKeyReportsNotFound(t *testing.T) {
	table := newTestTable(t)
	found, err := table.Unlink(key(99))
	require.NoError(t, err)
	require.False(t, found)
}

func TestStartAfterRestartPreservesBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.dat")
	store, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)

	header := HeaderSize(testBuckets, 8)
	mgr := slab.New(store, header)
	table := New(store, mgr, testBuckets, 8, testKeySize)
	require.NoError(t, table.Create())

	k := key(5)
	insert(t, table, k, []byte("survives"))
	require.NoError(t, store.Close(store.Capacity()))

	store2, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)
	defer store2.Close(store2.Capacity())

	mgr2 := slab.New(store2, header)
	table2 := New(store2, mgr2, testBuckets, 8, testKeySize)
	require.NoError(t, table2.Start())

	link, err := table2.Find(k)
	require.NoError(t, err)
	require.NotEqual(t, chainstore.NotAllocated, link)
}
