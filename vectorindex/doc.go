// Package vectorindex is the sole writer of chunk vectors.
//
// The Indexer runs after the persistence coordinator has committed a
// document's chunks. It removes the document's former vectors, upserts one
// record per current chunk and then flips the document's vector state to
// indexed. A failure leaves the committed relational rows untouched and marks
// the vector state failed so that a later reindex can reconcile it.
package vectorindex
