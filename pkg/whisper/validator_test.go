package whisper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAcceptableBoundsAreInclusive(t *testing.T) {
	v := NewValidator(0, 0)

	assert.False(t, v.IsAcceptable(4999))
	assert.True(t, v.IsAcceptable(5000))
	assert.True(t, v.IsAcceptable(1024*1024))
	assert.True(t, v.IsAcceptable(50*1024*1024))
	assert.False(t, v.IsAcceptable(50*1024*1024+1))
}

func TestNewValidatorDefaults(t *testing.T) {
	v := NewValidator(-1, 0)
	assert.Equal(t, DefaultMinAudioBytes, v.MinBytes())
	assert.Equal(t, DefaultMaxAudioBytes, v.MaxBytes())

	custom := NewValidator(100, 1000)
	assert.True(t, custom.IsAcceptable(100))
	assert.False(t, custom.IsAcceptable(99))
	assert.False(t, custom.IsAcceptable(1001))
}

func TestCleanRemovesArtifacts(t *testing.T) {
	v := NewValidator(0, 0)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"blank audio tag", "Hello [BLANK_AUDIO] world", "Hello world"},
		{"blank audio with space", "[blank audio] okay", "okay"},
		{"music paren", "(music) मुझे बुखार है", "मुझे बुखार है"},
		{"music notes", "♪♪♪ good morning", "good morning"},
		{"youtube closing", "Take two tablets daily. Thanks for watching!", "Take two tablets daily."},
		{"subtitle credit", "ठीक है। Subtitles by the community.", "ठीक है।"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Clean(tt.raw, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanCollapsesDegenerateRepeats(t *testing.T) {
	v := NewValidator(0, 0)

	// 4 次及以上折叠成一次
	got, err := v.Clean("the the the the the cat", "")
	require.NoError(t, err)
	assert.Equal(t, "the cat", got)

	// 大小写不敏感的游程也要折叠
	got, err = v.Clean("No no NO no stop", "")
	require.NoError(t, err)
	assert.Equal(t, "No stop", got)

	// 3 次重复保留，可能是正常口语
	got, err = v.Clean("very very very good", "")
	require.NoError(t, err)
	assert.Equal(t, "very very very good", got)
}

func TestCleanRemovesLanguageHintLeak(t *testing.T) {
	v := NewValidator(0, 0)

	got, err := v.Clean("Hindi मौसम कैसा है", "hindi")
	require.NoError(t, err)
	assert.Equal(t, "मौसम कैसा है", got)
}

func TestCleanFallsBackToRawWhenCleaningEmptiesText(t *testing.T) {
	v := NewValidator(0, 0)

	// 清理后整句为空：回退到原始文本而不是静默丢弃
	got, err := v.Clean("  [BLANK_AUDIO]  ", "")
	require.NoError(t, err)
	assert.Equal(t, "[BLANK_AUDIO]", got)
}

func TestCleanEmptyRawIsNoSpeech(t *testing.T) {
	v := NewValidator(0, 0)

	_, err := v.Clean("", "")
	assert.ErrorIs(t, err, ErrNoSpeechDetected)

	_, err = v.Clean("   \n\t ", "")
	assert.ErrorIs(t, err, ErrNoSpeechDetected)
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	v := NewValidator(0, 0)

	got, err := v.Clean("  hello \n\n  world\t ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}
