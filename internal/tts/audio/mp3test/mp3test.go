// Package mp3test builds small, valid MP3 streams for tests.
package mp3test

import "bytes"

// FrameSize is the length of one 128 kbps, 44.1 kHz MPEG-1 Layer III frame
// without padding.
const FrameSize = 417

// SampleRate of the generated frames.
const SampleRate = 44100

// SamplesPerFrame of an MPEG-1 Layer III frame.
const SamplesPerFrame = 1152

// header is MPEG-1, Layer III, no CRC, 128 kbps, 44.1 kHz, stereo.
var header = []byte{0xFF, 0xFB, 0x90, 0x04}

// Frames returns n silent frames. Each frame carries marker in its last
// byte so that tests can check the order of concatenated streams.
func Frames(n int, marker byte) []byte {
	var buf bytes.Buffer

	for range n {
		frame := make([]byte, FrameSize)
		copy(frame, header)
		frame[FrameSize-1] = marker
		buf.Write(frame)
	}

	return buf.Bytes()
}

// WithID3v2 prefixes data with an empty ID3v2.3 tag whose body is size bytes.
func WithID3v2(data []byte, size int) []byte {
	tag := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7F), byte(size >> 14 & 0x7F), byte(size >> 7 & 0x7F), byte(size & 0x7F)}
	tag = append(tag, make([]byte, size)...)

	return append(tag, data...)
}

// WithID3v1 appends a 128 byte ID3v1 tag to data.
func WithID3v1(data []byte) []byte {
	tag := make([]byte, 128)
	copy(tag, "TAG")

	out := append([]byte{}, data...)

	return append(out, tag...)
}
