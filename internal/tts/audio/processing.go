// Package audio provides MP3 fragment validation, tag handling, duration
// measurement and the concatenators that merge synthesized fragments into one
// artifact.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 container constants.
const (
	ID3V2_HEADER_SIZE   = 10
	ID3V2_FOOTER_SIZE   = 10
	ID3V2_FOOTER_FLAG   = 0x10
	ID3V1_TAG_SIZE      = 128
	FRAME_SYNC_BYTE     = 0xFF
	FRAME_SYNC_MASK     = 0xE0
	BYTES_PER_SAMPLE    = 4 // 16-bit stereo PCM as produced by the decoder.
	SYNCSAFE_BITS       = 7
	SYNCSAFE_SIZE_BYTES = 4
)

const (
	id3v2Marker = "ID3"
	id3v1Marker = "TAG"
)

// Error message formats.
const (
	ERR_FMT_DECODE   = "%w: %w"
	ERR_FMT_READ     = "failed to read audio file %s: %w"
	ERR_FMT_NOT_MP3  = "%w: %d bytes without an MPEG frame"
	ERR_FMT_NO_RATE  = "%w: sample rate is zero"
	ERR_FMT_TRUNCATE = "%w: ID3v2 tag of %d bytes exceeds %d byte payload"
)

// Common errors for the audio package.
var (
	ErrEmptyAudio     = errors.New("audio data is empty")
	ErrNotMP3         = errors.New("audio data is not MP3")
	ErrUndecodable    = errors.New("audio data could not be decoded")
	ErrTruncatedTag   = errors.New("audio tag is truncated")
	ErrNoFragments    = errors.New("no audio fragments to concatenate")
	ErrEmptyOutput    = errors.New("output path cannot be empty")
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Format represents supported audio formats.
type Format string

const (
	FORMAT_MP3 Format = "mp3"
)

// Info describes a decoded MP3 payload.
type Info struct {
	Format     Format        `json:"format"`
	Duration   time.Duration `json:"duration"`
	FileSize   int64         `json:"fileSize"`
	SampleRate int           `json:"sampleRate"`
}

// IsMP3 reports whether data starts like an MP3 stream: either an ID3v2 tag
// or an MPEG audio frame sync word.
func IsMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte(id3v2Marker)) {
		return true
	}

	return len(data) >= 2 && data[0] == FRAME_SYNC_BYTE && data[1]&FRAME_SYNC_MASK == FRAME_SYNC_MASK
}

// ValidateFragment rejects payloads that cannot be a synthesized MP3
// fragment. It is applied before a fragment is written to disk.
func ValidateFragment(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyAudio
	}

	if !IsMP3(data) {
		return fmt.Errorf(ERR_FMT_NOT_MP3, ErrNotMP3, len(data))
	}

	return nil
}

// StripTags returns the MPEG frame payload of data without a leading ID3v2
// tag (and its optional footer) or a trailing ID3v1 tag. The returned slice
// aliases data.
func StripTags(data []byte) ([]byte, error) {
	frames := data

	if len(frames) >= ID3V2_HEADER_SIZE && bytes.HasPrefix(frames, []byte(id3v2Marker)) {
		tagSize := ID3V2_HEADER_SIZE + syncsafe(frames[6:6+SYNCSAFE_SIZE_BYTES])
		if frames[5]&ID3V2_FOOTER_FLAG != 0 {
			tagSize += ID3V2_FOOTER_SIZE
		}

		if tagSize > len(frames) {
			return nil, fmt.Errorf(ERR_FMT_TRUNCATE, ErrTruncatedTag, tagSize, len(frames))
		}

		frames = frames[tagSize:]
	}

	if len(frames) >= ID3V1_TAG_SIZE && bytes.HasPrefix(frames[len(frames)-ID3V1_TAG_SIZE:], []byte(id3v1Marker)) {
		frames = frames[:len(frames)-ID3V1_TAG_SIZE]
	}

	return frames, nil
}

// Probe decodes data and reports its format, size and playing time.
func Probe(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyAudio
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf(ERR_FMT_DECODE, ErrUndecodable, err)
	}

	rate := decoder.SampleRate()
	if rate <= 0 {
		return Info{}, fmt.Errorf(ERR_FMT_NO_RATE, ErrUndecodable)
	}

	samples := decoder.Length() / BYTES_PER_SAMPLE

	return Info{
		Format:     FORMAT_MP3,
		Duration:   time.Duration(samples) * time.Second / time.Duration(rate),
		FileSize:   int64(len(data)),
		SampleRate: rate,
	}, nil
}

// Duration returns the playing time of an MP3 payload.
func Duration(data []byte) (time.Duration, error) {
	info, err := Probe(data)
	if err != nil {
		return 0, err
	}

	return info.Duration, nil
}

// ProbeFile reads and probes the MP3 file at path.
func ProbeFile(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf(ERR_FMT_READ, path, err)
	}
	defer file.Close()

	data, readErr := io.ReadAll(file)
	if readErr != nil {
		return Info{}, fmt.Errorf(ERR_FMT_READ, path, readErr)
	}

	return Probe(data)
}

// syncsafe decodes an ID3v2 syncsafe integer (7 significant bits per byte).
func syncsafe(b []byte) int {
	size := 0
	for _, v := range b {
		size = size<<SYNCSAFE_BITS | int(v&0x7F)
	}

	return size
}
