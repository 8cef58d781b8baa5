//go:build unix && !linux

package mmap

// Only Linux can prefault a mapping at mmap time.
const mapPopulate = 0
