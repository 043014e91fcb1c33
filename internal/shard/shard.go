package shard

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// ID represents a shard number in [0, NumShards).
type ID int

// ForEvent computes the shard that owns an event and its responses.
func ForEvent(eventID uuid.UUID, numShards int) ID {
	b := [16]byte(eventID)
	return hash(b[:], numShards)
}

// ForKey computes the shard for an arbitrary string key, such as a group id
// in the group index.
func ForKey(key string, numShards int) ID {
	return hash([]byte(key), numShards)
}

func hash(b []byte, numShards int) ID {
	h := fnv.New32a()
	h.Write(b)
	return ID(h.Sum32() % uint32(numShards))
}
