package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicompass/internal/selection"
)

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"ai-maturity=exploring", " workforce = limited ", "product-ai="})
	require.NoError(t, err)
	assert.Equal(t, []selection.Answer{
		{QuestionID: "ai-maturity", Value: "exploring"},
		{QuestionID: "workforce", Value: "limited"},
		{QuestionID: "product-ai", Value: ""},
	}, got)

	_, err = parseAnswers([]string{"exploring"})
	assert.Error(t, err)
	_, err = parseAnswers([]string{"=exploring"})
	assert.Error(t, err)
}
