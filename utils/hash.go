package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// BytesMD5 returns the hex md5 digest of data.
func BytesMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}
