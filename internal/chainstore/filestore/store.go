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

// Package filestore implements the growable memory-mapped byte arena (C1)
// that every other storage primitive is built on. A Store wraps one file,
// hands out shared Accessor windows over the live mapping, and serializes
// resizes against those windows with a reader-writer lock.
package filestore

import (
	"fmt"
	"os"
	"sync"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/n42blockchain/ledgerstore/internal/chainstore"
	"github.com/n42blockchain/ledgerstore/log"
)

// Store is a growable memory-mapped file. access() is shared;
// resize()/reserve() are exclusive and wait for outstanding accessors to
// release before remapping, per spec §4.1.
type Store struct {
	path string

	mu       sync.RWMutex
	file     *os.File
	mapping  mmap.MMap
	capacity uint64

	// growthRate is a percentage: new capacity = max(requested,
	// capacity*(1+growthRate/100)). Zero disables growth padding.
	growthRate uint16
}

// Open opens or creates the backing file at path, grows it to at least
// minimumSize, and maps it. growthRate is the expansion-policy percentage
// described in spec §4.1.
func Open(path string, minimumSize uint64, growthRate uint16) (*Store, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("filestore: stat %s: %w", path, err)
	}

	s := &Store{path: path, file: file, growthRate: growthRate}
	if info.Size() > 0 {
		if err := s.resizeLocked(uint64(info.Size())); err != nil {
			file.Close()
			return nil, err
		}
	}
	if err := s.reserveLocked(minimumSize); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// Capacity returns the current size of the backing file in bytes.
func (s *Store) Capacity() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// Access returns a shared window over the entire current mapping. The
// caller must Release it; Resize/Reserve block until all outstanding
// Accessors are released.
func (s *Store) Access() (*chainstore.Accessor, error) {
	s.mu.RLock()
	if s.mapping == nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("filestore: %s not mapped", s.path)
	}
	return chainstore.NewAccessor(s.mapping, s.mu.RUnlock), nil
}

// Resize truncates or grows the file to exactly size bytes and remaps it.
// It takes the exclusive lock, so it waits for any live Access() windows
// to be released first.
func (s *Store) Resize(size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizeLocked(size)
}

// Reserve grows the file to at least size, applying the expansion policy.
// A request for size <= capacity is a no-op.
func (s *Store) Reserve(size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(size)
}

func (s *Store) reserveLocked(size uint64) error {
	if size <= s.capacity {
		return nil
	}
	target := size
	if s.growthRate > 0 {
		grown := s.capacity * (100 + uint64(s.growthRate)) / 100
		if grown > target {
			target = grown
		}
	}
	return s.resizeLocked(target)
}

func (s *Store) resizeLocked(size uint64) error {
	if s.mapping != nil {
		if err := s.mapping.Flush(); err != nil {
			log.Warn("filestore: flush before remap failed", "path", s.path, "err", err)
		}
		if err := s.mapping.Unmap(); err != nil {
			return fmt.Errorf("filestore: unmap %s: %w", s.path, err)
		}
		s.mapping = nil
	}

	if err := s.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("filestore: truncate %s to %d: %w", s.path, size, err)
	}

	if size == 0 {
		s.capacity = 0
		return nil
	}

	mapped, err := mmap.Map(s.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("filestore: mmap %s: %w", s.path, err)
	}

	s.mapping = mapped
	s.capacity = size
	return nil
}

// Flush msyncs the live mapping to disk.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mapping == nil {
		return nil
	}
	if err := s.mapping.Flush(); err != nil {
		return fmt.Errorf("filestore: flush %s: %w", s.path, err)
	}
	return nil
}

// Close truncates the file back to highWaterMark (discarding expansion
// padding the owning manager never used) and unmaps/closes it.
func (s *Store) Close(highWaterMark uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapping != nil {
		if err := s.mapping.Flush(); err != nil {
			log.Warn("filestore: flush on close failed", "path", s.path, "err", err)
		}
		if err := s.mapping.Unmap(); err != nil {
			return fmt.Errorf("filestore: unmap %s: %w", s.path, err)
		}
		s.mapping = nil
	}

	if highWaterMark < s.capacity {
		if err := s.file.Truncate(int64(highWaterMark)); err != nil {
			return fmt.Errorf("filestore: truncate %s on close: %w", s.path, err)
		}
	}

	return s.file.Close()
}
