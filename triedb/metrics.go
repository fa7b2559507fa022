package triedb

import "github.com/ethereum/go-ethereum/metrics"

var cache_miss_cnt = metrics.NewRegisteredCounter("triedb/cachemiss", nil)
var commit_write_cnt = metrics.NewRegisteredCounter("triedb/commit/writes", nil)
var death_row_cnt = metrics.NewRegisteredCounter("triedb/commit/deletes", nil)

func CacheMisses() int64 {
	return cache_miss_cnt.Count()
}

func CommitWrites() int64 {
	return commit_write_cnt.Count()
}

func CommitDeletes() int64 {
	return death_row_cnt.Count()
}
