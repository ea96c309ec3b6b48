package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigram(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{name: "identical strings", a: "acme corp", b: "acme corp", expected: 1.0},
		{name: "both empty", a: "", b: "", expected: 0.0},
		{name: "one empty", a: "acme", b: "", expected: 0.0},
		{name: "disjoint strings", a: "xyz", b: "abc", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Trigram(tt.a, tt.b))
		})
	}

	t.Run("similar strings score between 0 and 1", func(t *testing.T) {
		score := Trigram("acme corporation", "acme corp")
		assert.Greater(t, score, 0.4)
		assert.Less(t, score, 1.0)
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Trigram("main street", "maine st"), Trigram("maine st", "main street"))
	})
}

func TestJaroWinkler(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		assert.Equal(t, 1.0, JaroWinkler("katherine", "katherine"))
	})

	t.Run("empty against non-empty", func(t *testing.T) {
		assert.Equal(t, 0.0, JaroWinkler("", "katherine"))
	})

	t.Run("common prefix boosts score", func(t *testing.T) {
		withPrefix := JaroWinkler("katherine", "kathryn")
		assert.Greater(t, withPrefix, Jaro("katherine", "kathryn"))
	})

	t.Run("typo scores high", func(t *testing.T) {
		assert.Greater(t, JaroWinkler("jonathan", "johnathan"), 0.9)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		assert.Less(t, JaroWinkler("katherine", "bob"), 0.6)
	})
}

func TestBestPairwise(t *testing.T) {
	t.Run("empty sets score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, BestPairwise(nil, []string{"a@b.com"}, JaroWinkler))
	})

	t.Run("picks the best pairing", func(t *testing.T) {
		as := []string{"kat@example.com", "k.smith@work.com"}
		bs := []string{"unrelated@other.org", "kat@example.com"}
		assert.Equal(t, 1.0, BestPairwise(as, bs, JaroWinkler))
	})
}

func TestOverlap(t *testing.T) {
	assert.True(t, Overlap([]string{"+15122037701"}, []string{"+15125550000", "+15122037701"}))
	assert.False(t, Overlap([]string{"+15122037701"}, []string{"+15125550000"}))
	assert.False(t, Overlap(nil, []string{"+15125550000"}))
}
