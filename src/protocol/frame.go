package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Binary Frame
//
// Every bufferable page payload travels as one binary frame:
//
//	[4-byte big-endian header length][UTF-8 JSON header][binary payload]
//
// The length-prefixed split lets a consumer dispatch and validate on the
// header without decoding a potentially large payload, and a length prefix
// cannot collide with payload bytes the way a delimiter would.
// -----------------------------------------------------------------------------

// FrameTypePageData tags a full materialized page payload.
const FrameTypePageData = "page_data"

// MFrameHeader is the JSON header of a binary frame.
type MFrameHeader struct {
	PageKey     string `json:"page_key"`
	FrameType   string `json:"frame_type"`
	DataType    string `json:"data_type"`
	RecordCount int64  `json:"record_count"`
}

// -----------------------------------------------------------------------------

// EncodeFrame assembles one wire frame from a header and payload bytes.
func EncodeFrame(header MFrameHeader, payload []byte) ([]byte, error) {
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame header: %w", err)
	}

	frame := make([]byte, 4+len(headerBytes)+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(headerBytes)))
	copy(frame[4:], headerBytes)
	copy(frame[4+len(headerBytes):], payload)
	return frame, nil
}

// -----------------------------------------------------------------------------

// DecodeFrame splits one wire frame back into header and payload. The payload
// slice aliases the input.
func DecodeFrame(frame []byte) (MFrameHeader, []byte, error) {
	var header MFrameHeader

	if len(frame) < 4 {
		return header, nil, fmt.Errorf("%w: frame shorter than length prefix", models.ErrProtocol)
	}
	headerLen := int(binary.BigEndian.Uint32(frame[:4]))
	if headerLen < 0 || 4+headerLen > len(frame) {
		return header, nil, fmt.Errorf("%w: frame header length %d exceeds frame size %d", models.ErrProtocol, headerLen, len(frame))
	}

	if err := json.Unmarshal(frame[4:4+headerLen], &header); err != nil {
		return header, nil, fmt.Errorf("%w: bad frame header: %v", models.ErrProtocol, err)
	}

	return header, frame[4+headerLen:], nil
}

// -----------------------------------------------------------------------------

// PageFrame builds the page-data frame for a key and its encoded payload.
func PageFrame(key models.MPageKey, recordCount int64, payload []byte) ([]byte, error) {
	return EncodeFrame(MFrameHeader{
		PageKey:     key.KeyString(),
		FrameType:   FrameTypePageData,
		DataType:    string(key.DataType),
		RecordCount: recordCount,
	}, payload)
}
