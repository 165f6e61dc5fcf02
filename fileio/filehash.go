package fileio

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
)

// Digest returns hex SHA256 of data, used to correlate reports on both ends
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the CRC32 of data for compact log fields
func ShortDigest(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
