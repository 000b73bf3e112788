package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLettersUpper(t *testing.T) {
	assert.Equal(t, "MARIA", LettersUpper(" ma-ria1 "))
	assert.Equal(t, "JÖRG", LettersUpper("jörg"))
	assert.Equal(t, "", LettersUpper("1234"))
}

func TestIsDigits(t *testing.T) {
	assert.True(t, IsDigits("1990", 4))
	assert.False(t, IsDigits("199", 4))
	assert.False(t, IsDigits("19900", 4))
	assert.False(t, IsDigits("19a0", 4))
	assert.True(t, IsDigits("42", 0))
	assert.False(t, IsDigits("", 0))
	assert.False(t, IsDigits("-4", 0))
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	assert.NoError(t, err)
	b, err := GenerateSecureToken(32)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)

	_, err = GenerateSecureToken(0)
	assert.Error(t, err)
}
