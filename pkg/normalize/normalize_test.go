package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperdesk/dedupe/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestBase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *string
	}{
		{name: "lower-cases and trims", input: "  Acme Corp  ", expected: strPtr("acme corp")},
		{name: "strips accents", input: "José García", expected: strPtr("jose garcia")},
		{name: "collapses punctuation runs", input: "Smith--&--Sons, Inc.", expected: strPtr("smith sons inc")},
		{name: "empty input", input: "", expected: nil},
		{name: "whitespace only", input: "   ", expected: nil},
		{name: "punctuation only", input: "---", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Base(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.expected, *got)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	t.Run("first and last tokens", func(t *testing.T) {
		name := NormalizeName("  John Q. Smith ")
		require.NotNil(t, name.Full)
		assert.Equal(t, "john q smith", *name.Full)
		assert.Equal(t, "john", *name.First)
		assert.Equal(t, "smith", *name.Last)
	})

	t.Run("single token has no last name", func(t *testing.T) {
		name := NormalizeName("Cher")
		assert.Equal(t, "cher", *name.First)
		assert.Nil(t, name.Last)
	})

	t.Run("empty input", func(t *testing.T) {
		name := NormalizeName("   ")
		assert.Nil(t, name.First)
		assert.Nil(t, name.Last)
		assert.Nil(t, name.Full)
	})
}

func TestNormalizeEmail(t *testing.T) {
	t.Run("gmail dot and plus insensitivity", func(t *testing.T) {
		a := NormalizeEmail("J.Doe+promo@gmail.com")
		b := NormalizeEmail("jdoe@gmail.com")
		require.NotNil(t, a.Norm)
		require.NotNil(t, b.Norm)
		assert.Equal(t, *b.Norm, *a.Norm)
		assert.Equal(t, "jdoe", *a.Local)
		assert.Equal(t, "gmail.com", *a.Domain)
	})

	t.Run("dots kept outside gmail", func(t *testing.T) {
		e := NormalizeEmail("j.doe@example.com")
		require.NotNil(t, e.Norm)
		assert.Equal(t, "j.doe@example.com", *e.Norm)
	})

	t.Run("plus suffix stripped everywhere", func(t *testing.T) {
		e := NormalizeEmail("sales+q3@example.com")
		require.NotNil(t, e.Norm)
		assert.Equal(t, "sales@example.com", *e.Norm)
	})

	t.Run("malformed input degrades to nil", func(t *testing.T) {
		for _, raw := range []string{"", "not-an-email", "@example.com", "user@"} {
			e := NormalizeEmail(raw)
			assert.Nil(t, e.Norm, raw)
			assert.Nil(t, e.Local, raw)
			assert.Nil(t, e.Domain, raw)
		}
	})
}

func TestNormalizePhone(t *testing.T) {
	t.Run("formatting variants normalize identically", func(t *testing.T) {
		a := NormalizePhone("(512) 203-7701")
		b := NormalizePhone("+15122037701")
		require.NotNil(t, a)
		require.NotNil(t, b)
		assert.Equal(t, "+15122037701", *a)
		assert.Equal(t, *b, *a)
	})

	t.Run("seven digit number rejected", func(t *testing.T) {
		assert.Nil(t, NormalizePhone("203-7701"))
	})

	t.Run("garbage rejected", func(t *testing.T) {
		assert.Nil(t, NormalizePhone("call me maybe"))
		assert.Nil(t, NormalizePhone(""))
	})
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *string
	}{
		{name: "strips scheme and subdomain", input: "https://www.acme.com/about", expected: strPtr("acme.com")},
		{name: "bare host", input: "acme.com", expected: strPtr("acme.com")},
		{name: "multi-part public suffix", input: "http://shop.example.co.uk", expected: strPtr("example.co.uk")},
		{name: "empty input", input: "", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWebsite(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.expected, *got)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Run("extracts five digit zip", func(t *testing.T) {
		addr := NormalizeAddress("123 Main St, Austin, TX 78701")
		require.NotNil(t, addr.Zip)
		assert.Equal(t, "78701", *addr.Zip)
		require.NotNil(t, addr.Norm)
		assert.Equal(t, "123 main st austin tx 78701", *addr.Norm)
	})

	t.Run("zip plus four keeps five digits", func(t *testing.T) {
		addr := NormalizeAddress("500 Oak Ave 78701-2345")
		require.NotNil(t, addr.Zip)
		assert.Equal(t, "78701", *addr.Zip)
	})

	t.Run("no zip", func(t *testing.T) {
		addr := NormalizeAddress("somewhere downtown")
		assert.Nil(t, addr.Zip)
	})
}

func TestEmailSet(t *testing.T) {
	set := EmailSet("A@X.com", "a@x.com", "bad-entry", "b@y.com")
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, set)
}

func TestApply(t *testing.T) {
	build := func() *models.Contact {
		return &models.Contact{
			Name:           strPtr("Katherine O'Brien"),
			PrimaryEmail:   strPtr("K.OBrien+work@Gmail.com"),
			SecondaryEmail: strPtr("kob@acme.com"),
			PrimaryPhone:   strPtr("(512) 203-7701"),
			Company:        strPtr("Acme, Inc."),
			Website:        strPtr("https://www.acme.com"),
			Address:        strPtr("123 Main St, Austin, TX 78701"),
			OtherEmails:    []string{"kob@acme.com", "katherine@other.org"},
		}
	}

	t.Run("derives every normalized field", func(t *testing.T) {
		c := build()
		Apply(c)

		assert.Equal(t, "katherine", *c.FirstNameNorm)
		assert.Equal(t, "brien", *c.LastNameNorm)
		assert.Equal(t, "katherine o brien", *c.FullNameNorm)
		assert.Equal(t, "kobrien@gmail.com", *c.EmailNorm)
		assert.Equal(t, "+15122037701", *c.PhoneE164)
		assert.Equal(t, "acme inc", *c.CompanyNorm)
		assert.Equal(t, "acme.com", *c.WebsiteRoot)
		assert.Equal(t, "78701", *c.ZipNorm)
		assert.Equal(t, []string{"kob@acme.com", "katherine@other.org"}, []string(c.OtherEmailsNorm))
		assert.NotNil(t, c.SoundexLast)
		assert.NotNil(t, c.MetaphoneLast)
	})

	t.Run("pure function, applying twice is stable", func(t *testing.T) {
		a := build()
		Apply(a)
		first := *a
		Apply(a)
		assert.Equal(t, first.FullNameNorm, a.FullNameNorm)
		assert.Equal(t, first.EmailNorm, a.EmailNorm)
		assert.Equal(t, first.PhoneE164, a.PhoneE164)
		assert.Equal(t, first.WebsiteRoot, a.WebsiteRoot)
		assert.Equal(t, first.ZipNorm, a.ZipNorm)
		assert.Equal(t, []string(first.OtherEmailsNorm), []string(a.OtherEmailsNorm))
	})

	t.Run("cleared raw fields clear derived fields", func(t *testing.T) {
		c := build()
		Apply(c)
		c.PrimaryEmail = nil
		c.PrimaryPhone = strPtr("203-7701")
		Apply(c)

		assert.Nil(t, c.EmailNorm)
		assert.Nil(t, c.EmailLocal)
		assert.Nil(t, c.EmailDomain)
		assert.Nil(t, c.PhoneE164)
	})
}
