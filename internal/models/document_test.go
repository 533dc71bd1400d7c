package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentType(t *testing.T) {
	docType, err := ParseDocumentType(" Scoring_Rubric ")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypeScoringRubric, docType)

	_, err = ParseDocumentType("cv_rubric")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDocument_HasText(t *testing.T) {
	blank := "  \n "
	text := "Go developer"

	assert.False(t, (&Document{}).HasText())
	assert.False(t, (&Document{ExtractedText: &blank}).HasText())
	assert.True(t, (&Document{ExtractedText: &text}).HasText())
}
