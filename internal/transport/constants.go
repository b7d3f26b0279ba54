package transport

// RTMP handshake and chunk-stream constants, carried forward from the
// teacher's rtmp_utils.go.
const (
	rtmpVersion     = 3
	handshakeSize   = 1536
	readIdleTimeout = 30000 // milliseconds; reset on every byte read

	chunkType0 = 0 // 11 bytes: timestamp(3) + length(3) + type(1) + stream id(4)
	chunkType1 = 1 // 7 bytes: delta(3) + length(3) + type(1)
	chunkType2 = 2 // 3 bytes: delta(3)
	chunkType3 = 3 // 0 bytes

	maxMessageType = 22 // RTMP_TYPE_METADATA; anything higher is a stop/garbage packet

	defaultInChunkSize = 128
)

var chunkHeaderSize = [4]uint32{11, 7, 3, 0}
