// Package codec serializes embedding vectors as raw float32 blobs — the
// persisted wire format of the vectors.embeddings table.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode packs a float32 vector into one contiguous little-endian blob.
func Encode(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Decode unpacks a blob back into a float32 vector. Blobs whose length is
// not a multiple of 4 are rejected.
func Decode(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
