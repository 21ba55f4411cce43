// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package slab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
)

func newTestManager(t *testing.T) (*Manager, *filestore.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slabs.dat")
	store, err := filestore.Open(path, 0, 50)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(0) })

	m := New(store, 0)
	require.NoError(t, m.Create())
	return m, store
}

func TestAllocateReturnsByteOffsets(t *testing.T) {
	m, _ := newTestManager(t)

	link1, err := m.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, chainstore.Link(0), link1)

	link2, err := m.Allocate(20)
	require.NoError(t, err)
	require.Equal(t, chainstore.Link(10), link2)

	require.NoError(t, m.Commit())
	require.Equal(t, uint64(30), m.PayloadSize())
}

func TestVariableSizeRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	link, err := m.Allocate(5)
	require.NoError(t, err)
	acc, err := m.Get(link)
	require.NoError(t, err)
	copy(acc.Bytes(), []byte("howdy"))
	acc.Release()
	require.NoError(t, m.Commit())

	acc2, err := m.Get(link)
	require.NoError(t, err)
	require.Equal(t, "howdy", string(acc2.Bytes()[:5]))
	acc2.Release()
}

func TestPastEOF(t *testing.T) {
	m, _ := newTestManager(t)
	link, err := m.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, m.Commit())

	require.False(t, m.PastEOF(link))
	require.True(t, m.PastEOF(link+8))
}

func TestStartRereadsWatermark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slabs.dat")
	store, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)

	m := New(store, 0)
	require.NoError(t, m.Create())
	_, err = m.Allocate(40)
	require.NoError(t, err)
	require.NoError(t, m.Commit())
	require.NoError(t, store.Close(store.Capacity()))

	store2, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)
	defer store2.Close(store2.Capacity())

	m2 := New(store2, 0)
	require.NoError(t, m2.Start())
	require.Equal(t, uint64(40), m2.PayloadSize())
}
