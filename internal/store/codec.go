package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ashureev/evo-lobby/internal/domain"
)

// Day payloads hold up to 600 frames of every creature and food item. They are
// stored as zstd-compressed JSON.
var (
	payloadEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	payloadDecoder, _ = zstd.NewReader(nil)
)

func encodePayload(p domain.DayPayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return payloadEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decodePayload(blob []byte) (domain.DayPayload, error) {
	var p domain.DayPayload
	raw, err := payloadDecoder.DecodeAll(blob, nil)
	if err != nil {
		return p, fmt.Errorf("decompress payload: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
