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

// Settings configures the on-disk layout and write discipline of a Store.
// Configuration loading (flags, files, env) is out of scope; callers build
// a Settings value directly or start from DefaultSettings.
type Settings struct {
	// Directory is the storage root; every file below lives directly in it.
	Directory string `json:"directory" yaml:"directory"`

	// FlushWrites enables per-write fsync discipline: EndWrite flushes every
	// touched store before releasing the flush lock.
	FlushWrites bool `json:"flush_writes" yaml:"flush_writes"`

	// CacheCapacity bounds the unspent-output LRU. Zero disables the cache
	// entirely (the transaction database skips allocating it, rather than
	// running one of size 0).
	CacheCapacity uint32 `json:"cache_capacity" yaml:"cache_capacity"`

	// FileGrowthRate is the per-remap expansion padding percentage handed to
	// every filestore.Store (spec §4.1's expansion policy).
	FileGrowthRate uint16 `json:"file_growth_rate" yaml:"file_growth_rate"`

	BlockTableBuckets         uint32 `json:"block_table_buckets" yaml:"block_table_buckets"`
	TransactionTableBuckets   uint32 `json:"transaction_table_buckets" yaml:"transaction_table_buckets"`
	PaymentTableBuckets       uint32 `json:"payment_table_buckets" yaml:"payment_table_buckets"`
	NeutrinoFilterTableBuckets uint32 `json:"neutrino_filter_table_buckets" yaml:"neutrino_filter_table_buckets"`

	// Minimum file sizes, in bytes, applied at Open for each managed file.
	BlockTableMinimumSize       uint64 `json:"block_table_minimum_size" yaml:"block_table_minimum_size"`
	CandidateIndexMinimumSize   uint64 `json:"candidate_index_minimum_size" yaml:"candidate_index_minimum_size"`
	ConfirmedIndexMinimumSize   uint64 `json:"confirmed_index_minimum_size" yaml:"confirmed_index_minimum_size"`
	TransactionIndexMinimumSize uint64 `json:"transaction_index_minimum_size" yaml:"transaction_index_minimum_size"`
	TransactionTableMinimumSize uint64 `json:"transaction_table_minimum_size" yaml:"transaction_table_minimum_size"`
	FilterTableMinimumSize      uint64 `json:"filter_table_minimum_size" yaml:"filter_table_minimum_size"`
}

// DefaultSettings returns sane defaults for a single local node: no flush
// discipline, a modest unspent-output cache, 10% growth padding, and
// bucket counts sized for a few million blocks and tens of millions of
// transactions.
func DefaultSettings(directory string) Settings {
	return Settings{
		Directory:      directory,
		FlushWrites:    false,
		CacheCapacity:  100_000,
		FileGrowthRate: 10,

		BlockTableBuckets:          4_000_000,
		TransactionTableBuckets:    100_000_000,
		PaymentTableBuckets:        50_000_000,
		NeutrinoFilterTableBuckets: 4_000_000,

		BlockTableMinimumSize:       1 << 20,
		CandidateIndexMinimumSize:   1 << 20,
		ConfirmedIndexMinimumSize:   1 << 20,
		TransactionIndexMinimumSize: 1 << 20,
		TransactionTableMinimumSize: 1 << 20,
		FilterTableMinimumSize:      1 << 20,
	}
}

// Validate fills in sane defaults for any zero-valued field that must not
// be zero, mirroring the teacher's config pattern of a tolerant Validate.
// An empty Directory is the one missing value it rejects with an error.
func (s *Settings) Validate() error {
	if s.Directory == "" {
		return errDirectoryRequired
	}
	if s.BlockTableBuckets == 0 {
		s.BlockTableBuckets = 4_000_000
	}
	if s.TransactionTableBuckets == 0 {
		s.TransactionTableBuckets = 100_000_000
	}
	if s.PaymentTableBuckets == 0 {
		s.PaymentTableBuckets = 50_000_000
	}
	if s.NeutrinoFilterTableBuckets == 0 {
		s.NeutrinoFilterTableBuckets = 4_000_000
	}
	for _, size := range []*uint64{
		&s.BlockTableMinimumSize,
		&s.CandidateIndexMinimumSize,
		&s.ConfirmedIndexMinimumSize,
		&s.TransactionIndexMinimumSize,
		&s.TransactionTableMinimumSize,
		&s.FilterTableMinimumSize,
	} {
		if *size == 0 {
			*size = 1 << 20
		}
	}
	return nil
}
