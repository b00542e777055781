// Package flat provides an exact inner-product vector index.
//
// Vectors are normalized on insert and held in a slice parallel to their
// metadata entries; a search scores every vector, so results are exact.
// Classification and metadata filters are applied after scoring over a
// fixed over-fetch window of TopK times the configured multiplier. Hits
// beyond that window are not considered even when filtering leaves fewer
// than TopK survivors.
//
// Persistence writes either one sealed blob (CBOR snapshot, zstd
// compressed, then sealed) or, without a sealer, a raw float32 matrix plus
// a CBOR metadata sidecar. Every file is written to a temporary name and
// renamed into place.
package flat
