package command

import (
	"encoding/binary"

	"github.com/nullkey-live/rtmpbroker/internal/amf0"
)

// Fixed on-wire constants (spec.md §6), bit-exact for interop.
const (
	windowAckSize          uint32 = 5_000_000
	peerBandwidth          uint32 = 5_000_000
	peerBandwidthLimitType byte   = 2 // dynamic
	outboundChunkSize      uint32 = 1480

	fmsVersion   = "FMS/3,0,1,123"
	capabilities = 31.0

	// createStream always answers with stream id 1 (spec.md §4.3).
	fixedStreamID = 1.0
)

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func encodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func windowAckSizePayload(size uint32) []byte {
	return encodeU32(size)
}

func setPeerBandwidthPayload(size uint32, limitType byte) []byte {
	return append(encodeU32(size), limitType)
}

func setChunkSizePayload(size uint32) []byte {
	return encodeU32(size)
}

func userControlPayload(eventCode uint16, streamID uint32) []byte {
	return append(encodeU16(eventCode), encodeU32(streamID)...)
}

// rtmpSampleAccessPayload builds the |RtmpSampleAccess AMF0_DATA
// message clients require to unlock pixel-level access to decoded
// frames (spec.md §4.3 play step 2).
func rtmpSampleAccessPayload() []byte {
	return amf0.EncodeAll(amf0.String("|RtmpSampleAccess"), amf0.Boolean(true), amf0.Boolean(true))
}
