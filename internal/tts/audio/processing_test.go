package audio_test

import (
	"testing"
	"time"

	"github.com/book-expert/doc2speech/internal/tts/audio"
	"github.com/book-expert/doc2speech/internal/tts/audio/mp3test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameDuration(frames int) time.Duration {
	return time.Duration(frames*mp3test.SamplesPerFrame) * time.Second / mp3test.SampleRate
}

func TestIsMP3(t *testing.T) {
	t.Parallel()

	assert.True(t, audio.IsMP3(mp3test.Frames(1, 0)))
	assert.True(t, audio.IsMP3(mp3test.WithID3v2(mp3test.Frames(1, 0), 16)))
	assert.False(t, audio.IsMP3([]byte("<html>captcha</html>")))
	assert.False(t, audio.IsMP3([]byte{0xFF}))
	assert.False(t, audio.IsMP3(nil))
}

func TestValidateFragment(t *testing.T) {
	t.Parallel()

	require.NoError(t, audio.ValidateFragment(mp3test.Frames(2, 1)))
	require.ErrorIs(t, audio.ValidateFragment(nil), audio.ErrEmptyAudio)
	require.ErrorIs(t, audio.ValidateFragment([]byte(`{"error":"quota"}`)), audio.ErrNotMP3)
}

func TestStripTags(t *testing.T) {
	t.Parallel()

	frames := mp3test.Frames(3, 7)

	tests := []struct {
		name  string
		input []byte
	}{
		{"bare frames", frames},
		{"id3v2", mp3test.WithID3v2(frames, 300)},
		{"id3v1", mp3test.WithID3v1(frames)},
		{"both", mp3test.WithID3v1(mp3test.WithID3v2(frames, 20))},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			stripped, err := audio.StripTags(testCase.input)
			require.NoError(t, err)
			assert.Equal(t, frames, stripped)
		})
	}
}

func TestStripTags_Footer(t *testing.T) {
	t.Parallel()

	frames := mp3test.Frames(1, 0)
	tagged := mp3test.WithID3v2(frames, 0)
	tagged[5] = 0x10
	tagged = append(tagged[:10], append(make([]byte, 10), tagged[10:]...)...)

	stripped, err := audio.StripTags(tagged)
	require.NoError(t, err)
	assert.Equal(t, frames, stripped)
}

func TestStripTags_Truncated(t *testing.T) {
	t.Parallel()

	tagged := mp3test.WithID3v2(nil, 500)[:100]

	_, err := audio.StripTags(tagged)
	require.ErrorIs(t, err, audio.ErrTruncatedTag)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	info, err := audio.Probe(mp3test.Frames(40, 0))
	require.NoError(t, err)

	assert.Equal(t, audio.FORMAT_MP3, info.Format)
	assert.Equal(t, mp3test.SampleRate, info.SampleRate)
	assert.Equal(t, int64(40*mp3test.FrameSize), info.FileSize)
	assert.Equal(t, frameDuration(40), info.Duration)
}

func TestDuration_IgnoresTags(t *testing.T) {
	t.Parallel()

	bare, err := audio.Duration(mp3test.Frames(12, 0))
	require.NoError(t, err)

	tagged, err := audio.Duration(mp3test.WithID3v2(mp3test.Frames(12, 0), 64))
	require.NoError(t, err)

	assert.Equal(t, bare, tagged)
}

func TestProbe_Errors(t *testing.T) {
	t.Parallel()

	_, err := audio.Probe(nil)
	require.ErrorIs(t, err, audio.ErrEmptyAudio)

	_, err = audio.Probe([]byte("definitely not audio"))
	require.ErrorIs(t, err, audio.ErrUndecodable)
}
