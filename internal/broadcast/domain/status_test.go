package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_Pipeline(t *testing.T) {
	valid := [][2]Status{
		{Pending, FetchingNews},
		{FetchingNews, GeneratingScript},
		{GeneratingScript, GeneratingAudio},
		{GeneratingAudio, GeneratingAvatars},
		{GeneratingAvatars, GeneratingBRoll},
		{GeneratingBRoll, Composing},
		{Composing, Completed},
		{GeneratingScript, GeneratingScript},
	}
	for _, pair := range valid {
		assert.NoError(t, ValidateTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestValidateTransition_FailedFromAnyNonTerminal(t *testing.T) {
	for _, s := range pipeline[:len(pipeline)-1] {
		assert.NoError(t, ValidateTransition(s, Failed), "%s -> Failed", s)
	}
}

func TestValidateTransition_Invalid(t *testing.T) {
	invalid := [][2]Status{
		{Pending, GeneratingScript},
		{GeneratingAudio, GeneratingScript},
		{Composing, GeneratingBRoll},
		{Completed, Failed},
		{Failed, Pending},
		{Completed, Completed},
		{Failed, Failed},
		{Status("bogus"), Failed},
	}
	for _, pair := range invalid {
		err := ValidateTransition(pair[0], pair[1])
		require.Error(t, err, "%s -> %s", pair[0], pair[1])
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestProgress_MonotonicAlongPipeline(t *testing.T) {
	prev := -1
	for _, s := range pipeline {
		p := Progress(s)
		assert.Greater(t, p, prev, "checkpoint for %s", s)
		prev = p
	}
	assert.Equal(t, 100, Progress(Completed))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("GeneratingBRoll")
	require.NoError(t, err)
	assert.Equal(t, GeneratingBRoll, s)

	s, err = ParseStatus("Failed")
	require.NoError(t, err)
	assert.True(t, s.IsTerminal())

	_, err = ParseStatus("generating")
	assert.Error(t, err)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Sändning klar!", Message(Completed))
	assert.NotEmpty(t, Message(Failed))
}
