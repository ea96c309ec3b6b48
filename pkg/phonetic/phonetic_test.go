package phonetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoundex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Robert", expected: "R163"},
		{input: "Rupert", expected: "R163"},
		{input: "Smith", expected: "S530"},
		{input: "Smyth", expected: "S530"},
		{input: "Jackson", expected: "J250"},
		{input: "lee", expected: "L000"},
		{input: "", expected: ""},
		{input: "   ", expected: ""},
		{input: "42", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Soundex(tt.input))
		})
	}
}

func TestSoundexCaseInsensitive(t *testing.T) {
	assert.Equal(t, Soundex("SMITH"), Soundex("smith"))
}

func TestMetaphone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "smith", expected: "SMT"},
		{input: "smyth", expected: "SMT"},
		{input: "catherine", expected: "KTRN"},
		{input: "katherine", expected: "KTRN"},
		{input: "phillips", expected: "FLPS"},
		{input: "", expected: ""},
		{input: "'-", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Metaphone(tt.input))
		})
	}
}

func TestMetaphoneCapsLength(t *testing.T) {
	assert.LessOrEqual(t, len(Metaphone("schwarzenegger")), 6)
}
