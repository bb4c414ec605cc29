package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings are persisted as packed little-endian float32 blobs: 4 bytes
// per dimension, no header. The layout is what the sqlite-vec extension
// expects for float[] columns, so the same blob feeds both the native
// backend and the brute-force scan.

// EncodeEmbedding packs a float32 vector into a binary blob.
func EncodeEmbedding(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

// DecodeEmbedding unpacks a binary blob into a float32 vector. The blob
// length must be a multiple of 4.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob: %d bytes", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : (i+1)*4]))
	}
	return vec, nil
}
