// Package ids generates the opaque identifiers used for runs and stored
// files: a fixed prefix plus 12 characters drawn uniformly from a
// 62-character alphanumeric alphabet using crypto/rand. Collisions are not
// checked; at 62^12 the probability is negligible at expected scale.
package ids

import (
	"crypto/rand"
	"math/big"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 12

	RunPrefix  = "run_"
	FilePrefix = "file_"
)

// New returns prefix followed by 12 random alphanumeric characters.
func New(prefix string) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; nothing sensible to do but stop.
			panic("ids: entropy source unavailable: " + err.Error())
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf)
}

// NewRunID mints a run identifier.
func NewRunID() string { return New(RunPrefix) }

// NewFileID mints an uploaded-file or artifact identifier.
func NewFileID() string { return New(FilePrefix) }
