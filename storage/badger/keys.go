package badger

import (
	"github.com/poiesic/normdoc/core"
)

// Key prefixes. Every key is namespaced by collection so several collections
// can share one database.
const (
	vectorPrefix      = "vec"
	vectorDocPrefix   = "vecdoc"
	keySeparator      = ":"
	vectorDocIndexVal = "1"
)

// makeVectorPrefix returns the prefix of all vector records in a collection.
// Format: vec:collection:
func makeVectorPrefix(collection string) []byte {
	return []byte(vectorPrefix + keySeparator + collection + keySeparator)
}

// makeVectorKey generates the key of a vector record.
// Format: vec:collection:chunkID
func makeVectorKey(collection string, chunkID core.ID) []byte {
	return append(makeVectorPrefix(collection), chunkID...)
}

// makeDocIndexPrefix returns the prefix of a document's chunk index entries.
// Format: vecdoc:collection:documentID:
func makeDocIndexPrefix(collection string, documentID core.ID) []byte {
	return []byte(vectorDocPrefix + keySeparator + collection + keySeparator + string(documentID) + keySeparator)
}

// makeDocIndexKey generates the document index key for a chunk.
// Format: vecdoc:collection:documentID:chunkID
func makeDocIndexKey(collection string, documentID, chunkID core.ID) []byte {
	return append(makeDocIndexPrefix(collection, documentID), chunkID...)
}

// chunkIDFromKey extracts the trailing chunk ID from a key with the given prefix.
func chunkIDFromKey(prefix, key []byte) core.ID {
	return core.ID(key[len(prefix):])
}
