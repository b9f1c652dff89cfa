package runtime

import "github.com/cespare/xxhash/v2"

const defaultShards = 32

func shardIndex(key string, shards int) int {
	return int(xxhash.Sum64String(key) % uint64(shards))
}

func normalizeShards(n int) int {
	if n <= 0 {
		return defaultShards
	}
	return n
}
