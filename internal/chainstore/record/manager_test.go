// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package record

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/internal/chainstore/filestore"
)

const testRecordSize = 16

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.dat")
	store, err := filestore.Open(path, 0, 50)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(0) })

	m := New(store, 0, testRecordSize)
	require.NoError(t, m.Create())
	return m
}

func TestCreateStartsAtZeroWatermark(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, uint64(0), m.Count())
	require.True(t, m.PastEOF(0))
}

func TestAllocateWriteCommitRoundTrip(t *testing.T) {
	m := newTestManager(t)

	link, err := m.Allocate(testRecordSize)
	require.NoError(t, err)
	require.Equal(t, chainstore.Link(0), link)

	acc, err := m.Get(link)
	require.NoError(t, err)
	copy(acc.Bytes(), []byte("hello, record!!!"))
	acc.Release()
	require.NoError(t, m.Commit())

	require.False(t, m.PastEOF(link))
	require.True(t, m.PastEOF(link+1))

	acc2, err := m.Get(link)
	require.NoError(t, err)
	require.Equal(t, "hello, record!!!", string(acc2.Bytes()))
	acc2.Release()
}

func TestAllocateRejectsNonMultipleSize(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Allocate(testRecordSize + 1)
	require.Error(t, err)
}

func TestStartRereadsWatermarkAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.dat")
	store, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)

	m := New(store, 0, testRecordSize)
	require.NoError(t, m.Create())

	link, err := m.Allocate(testRecordSize * 3)
	require.NoError(t, err)
	require.Equal(t, chainstore.Link(0), link)
	require.NoError(t, m.Commit())
	require.NoError(t, store.Close(store.Capacity()))

	store2, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)
	defer store2.Close(store2.Capacity())

	m2 := New(store2, 0, testRecordSize)
	require.NoError(t, m2.Start())
	require.Equal(t, uint64(3), m2.Count())
}

func TestUncommittedAllocationIsNotDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.dat")
	store, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)

	m := New(store, 0, testRecordSize)
	require.NoError(t, m.Create())

	_, err = m.Allocate(testRecordSize)
	require.NoError(t, err)
	// No Commit().
	require.NoError(t, store.Close(store.Capacity()))

	store2, err := filestore.Open(path, 0, 0)
	require.NoError(t, err)
	defer store2.Close(store2.Capacity())

	m2 := New(store2, 0, testRecordSize)
	require.NoError(t, m2.Start())
	require.Equal(t, uint64(0), m2.Count())
}
