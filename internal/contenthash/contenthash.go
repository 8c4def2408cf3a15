// Package contenthash computes the block-based content hash reported by the
// remote for committed files.
//
// The input is split into 4 MiB blocks, each block is hashed with SHA-256, the
// block digests are concatenated and the concatenation is hashed again.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// BlockSize is the size of a hashed block.
const BlockSize = 4 * 1024 * 1024

// Hash implements hash.Hash for the block content hash.
type Hash struct {
	block    hash.Hash
	blockLen int
	digests  []byte
}

var _ hash.Hash = (*Hash)(nil)

func New() *Hash {
	return &Hash{block: sha256.New()}
}

func (h *Hash) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		room := BlockSize - h.blockLen
		n := min(room, len(p))
		h.block.Write(p[:n])
		h.blockLen += n
		p = p[n:]
		if h.blockLen == BlockSize {
			h.digests = h.block.Sum(h.digests)
			h.block.Reset()
			h.blockLen = 0
		}
	}
	return written, nil
}

// Sum appends the content hash to b. It does not change the underlying state.
func (h *Hash) Sum(b []byte) []byte {
	digests := h.digests
	if h.blockLen > 0 {
		digests = h.block.Sum(append([]byte(nil), h.digests...))
	}
	overall := sha256.Sum256(digests)
	return append(b, overall[:]...)
}

func (h *Hash) Reset() {
	h.block.Reset()
	h.blockLen = 0
	h.digests = h.digests[:0]
}

func (h *Hash) Size() int { return sha256.Size }

func (h *Hash) BlockSize() int { return BlockSize }

// Hex returns the current content hash as a lowercase hex string.
func (h *Hash) Hex() string {
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes returns the content hash of data.
func Bytes(data []byte) string {
	h := New()
	h.Write(data)
	return h.Hex()
}
