// Package hash provides digests and stable identifiers for indexed outputs.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// pointNamespace scopes point ids so they never collide with other UUIDv5 users.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("deepdetect/simsearch"))

// PointID returns the stable UUID of an indexed output. A uri alone names a
// whole-sample vector; with a box it names one region of that sample.
func PointID(uri string, bbox ...float64) string {
	var b strings.Builder
	b.WriteString(uri)
	for _, v := range bbox {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return uuid.NewSHA1(pointNamespace, []byte(b.String())).String()
}

// BatchDigest is a short fingerprint of a measure batch, stored on history entries.
func BatchDigest(data []byte) string {
	return SHA256Short(data, 16)
}
