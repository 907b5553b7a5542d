package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationKeyRoundTrip(t *testing.T) {
	key := LocationKey(12, 34, 56)
	assert.Equal(t, "12/34/56", key)

	userID, folderID, imageID, err := ParseLocationKey(key)
	require.NoError(t, err)
	assert.Equal(t, int64(12), userID)
	assert.Equal(t, int64(34), folderID)
	assert.Equal(t, int64(56), imageID)
}

func TestParseLocationKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "1/2", "1/2/3/4", "a/b/c"} {
		_, _, _, err := ParseLocationKey(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestGroupKeyIsSorted(t *testing.T) {
	key := GroupKey([]string{"bbb", "aaa", "ccc"})
	assert.Equal(t, "aaa+bbb+ccc", key)
	// the input slice must not be reordered
	input := []string{"zzz", "aaa"}
	GroupKey(input)
	assert.Equal(t, []string{"zzz", "aaa"}, input)

	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, SplitGroupKey(key))
	assert.Nil(t, SplitGroupKey(""))
}

func TestPairKeyIsSymmetric(t *testing.T) {
	assert.Equal(t, PairKey("x", "y"), PairKey("y", "x"))
}

func TestValidVerdict(t *testing.T) {
	for _, v := range []Verdict{VerdictNew, VerdictFalse, VerdictKeep, VerdictSkip} {
		assert.True(t, ValidVerdict(v))
	}
	assert.False(t, ValidVerdict("maybe"))
	assert.False(t, ValidVerdict(""))
}

func TestSensitivitiesMethodLookup(t *testing.T) {
	s := Sensitivities{Percept: 4, Average: -1, Diff: 2, Wavelet: 0, CNN: 0.95}

	assert.Equal(t, 4.0, s.Method(MethodPercept))
	assert.Equal(t, -1.0, s.Method(MethodAverage))
	assert.Equal(t, 0.95, s.Method(MethodEmbedding))
	assert.Equal(t, -1.0, s.Method("bogus"))

	assert.True(t, s.Enabled(MethodPercept))
	assert.True(t, s.Enabled(MethodWavelet), "zero threshold means exact match only, still enabled")
	assert.False(t, s.Enabled(MethodAverage))
}

func TestNewStateHasDefaults(t *testing.T) {
	state := NewState()
	assert.Equal(t, DefaultSensitivities, state.Detection.Regular)
	assert.Equal(t, DefaultAnimatedSensitivities, state.Detection.Animated)
	assert.NotNil(t, state.Blobs)
	assert.NotNil(t, state.ImageIndex)
	assert.NotNil(t, state.Duplicates)
	assert.NotNil(t, state.DuplicateIndex)
}

func TestDuplicateGroupDigests(t *testing.T) {
	group := &DuplicateGroup{Verdicts: map[string]Verdict{
		"ccc": VerdictNew, "aaa": VerdictKeep, "bbb": VerdictSkip,
	}}
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, group.Digests())
}
