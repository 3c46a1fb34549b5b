// Package hash provides the CRC32-Castagnoli checksum used to protect the
// blocks of serialized index streams.
//
//	sum := hash.CRC32C(block)
//
// Go's hash/crc32 uses hardware instructions (SSE4.2, ARM CRC) for the
// Castagnoli polynomial when available.
package hash
