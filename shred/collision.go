package shred

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// collisionTracker notices when two different key sequences map to the
// same column file, e.g. ["a b"] and ["a_b"]. Paths that differ only in
// indices are not collisions. Files are known only by their xxhash.
type collisionTracker struct {
	owners   map[uint64]string // file hash -> keys of the first writer
	reported map[uint64]struct{}
}

func newCollisionTracker() *collisionTracker {
	return &collisionTracker{
		owners:   make(map[uint64]string),
		reported: make(map[uint64]struct{}),
	}
}

// track records keys as writing to file. It returns the key sequence that
// claimed file first when it differs from keys, once per offending pair.
func (t *collisionTracker) track(file string, keys []string) (string, bool) {
	h := xxhash.Sum64String(file)
	k := renderKeys(keys)
	first, ok := t.owners[h]
	if !ok {
		t.owners[h] = k
		return "", false
	}
	if first == k {
		return "", false
	}
	pair := xxhash.Sum64String(first + "\x00" + k)
	if _, done := t.reported[pair]; done {
		return "", false
	}
	t.reported[pair] = struct{}{}
	return first, true
}

func renderKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Quote(k)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
