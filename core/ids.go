package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewID returns a new random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// ChunkID derives the identifier of the chunk at index within a document using
// a 128-bit BLAKE2b hash. The same document and index always map to the same
// chunk ID, so re-chunking a document overwrites rather than duplicates vectors.
func ChunkID(documentID ID, index int) ID {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(documentID))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.Itoa(index)))
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// ContentHash returns the hex SHA-256 of raw document bytes, used for dedup.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
