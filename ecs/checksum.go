/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs

import "github.com/OneOfOne/xxhash"

// ChecksumBytes returns an xxhash64 digest of b. It exists for this
// package's round-trip tests: a source chunk's bytes and the synced
// replica's bytes must checksum identically.
func ChecksumBytes(b []byte) uint64 {
	return xxhash.Checksum64(b)
}
