package action

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFeature packs a feature vector as base64 over little-endian float32,
// the form the model process exchanges features in.
func EncodeFeature(feature []float32) string {
	buf := make([]byte, len(feature)*4)
	for i, v := range feature {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func DecodeFeature(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding feature: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("feature blob is %d bytes, not a float32 array", len(buf))
	}
	feature := make([]float32, len(buf)/4)
	for i := range feature {
		feature[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return feature, nil
}

func encodeFeatures(features [][]float32) []string {
	out := make([]string, len(features))
	for i, f := range features {
		out[i] = EncodeFeature(f)
	}
	return out
}

func decodeFeatures(blobs []string) ([][]float32, error) {
	out := make([][]float32, len(blobs))
	for i, blob := range blobs {
		f, err := DecodeFeature(blob)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
