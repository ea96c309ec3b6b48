// Package normalize turns raw contact fields into canonical comparison keys.
// Every function is pure: same input, same output, no I/O. Malformed input
// never errors - it degrades to nil so a bad phone number can't fail a write.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/phonetic"
)

// DefaultRegion is the region hint for phone numbers with no country code.
const DefaultRegion = "US"

// minNationalDigits filters out short/VOIP-like numbers.
const minNationalDigits = 10

var (
	zipRe        = regexp.MustCompile(`\b(\d{5})(-\d{4})?\b`)
	accentStrip  = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	gmailDomains = map[string]bool{"gmail.com": true, "googlemail.com": true}
)

// Name holds the normalized name parts.
type Name struct {
	First *string
	Last  *string
	Full  *string
}

// Email holds the normalized email parts.
type Email struct {
	Norm   *string
	Local  *string
	Domain *string
}

// Base lower-cases, strips accents, collapses non-alphanumeric runs to single
// spaces, and trims. Empty or whitespace-only input yields nil.
func Base(s string) *string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(accentStrip, s); err == nil {
		s = out
	}

	var b strings.Builder
	prevSpace := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return nil
	}
	return &out
}

// NormalizeName splits the base-normalized name into first/last tokens. A
// single-token name has no last name.
func NormalizeName(raw string) Name {
	full := Base(raw)
	if full == nil {
		return Name{}
	}

	tokens := strings.Fields(*full)
	name := Name{Full: full}
	first := tokens[0]
	name.First = &first
	if len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		name.Last = &last
	}
	return name
}

// NormalizeEmail canonicalizes an email address: lower-case, trim, strip any
// +suffix from the local part, and drop dots from gmail locals (gmail treats
// j.doe and jdoe as the same box). No @ means no email.
func NormalizeEmail(raw string) Email {
	s := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return Email{}
	}

	local := s[:at]
	domain := s[at+1:]

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if gmailDomains[domain] {
		local = strings.ReplaceAll(local, ".", "")
	}
	if local == "" {
		return Email{}
	}

	combined := local + "@" + domain
	return Email{Norm: &combined, Local: &local, Domain: &domain}
}

// NormalizePhone parses a phone number and returns its E.164 form. Numbers
// that fail to parse, are invalid, or carry fewer than 10 national digits
// are rejected.
func NormalizePhone(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		return nil
	}
	if !phonenumbers.IsValidNumber(num) {
		return nil
	}
	if len(phonenumbers.GetNationalSignificantNumber(num)) < minNationalDigits {
		return nil
	}

	e164 := phonenumbers.Format(num, phonenumbers.E164)
	return &e164
}

// NormalizeWebsite reduces a URL to its registrable domain (eTLD+1).
func NormalizeWebsite(raw string) *string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return nil
	}

	root, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil || root == "" {
		return nil
	}
	return &root
}

// Address holds the normalized address parts.
type Address struct {
	Norm *string
	Zip  *string
}

// NormalizeAddress base-normalizes the address and extracts a 5-digit ZIP.
// ZIP+4 inputs keep only the 5-digit group.
func NormalizeAddress(raw string) Address {
	addr := Address{Norm: Base(raw)}
	if m := zipRe.FindStringSubmatch(raw); m != nil {
		zip := m[1]
		addr.Zip = &zip
	}
	return addr
}

// EmailSet normalizes every element and deduplicates, dropping malformed
// entries. Insertion order of the inputs is preserved for the survivors.
func EmailSet(raws ...string) []string {
	seen := make(map[string]bool, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		e := NormalizeEmail(raw)
		if e.Norm == nil || seen[*e.Norm] {
			continue
		}
		seen[*e.Norm] = true
		out = append(out, *e.Norm)
	}
	return out
}

// PhoneSet normalizes every element and deduplicates, dropping rejects.
func PhoneSet(raws ...string) []string {
	seen := make(map[string]bool, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		p := NormalizePhone(raw)
		if p == nil || seen[*p] {
			continue
		}
		seen[*p] = true
		out = append(out, *p)
	}
	return out
}

// Apply recomputes every normalized field on the contact from its current raw
// fields. It mutates only the derived columns.
func Apply(c *models.Contact) {
	name := NormalizeName(deref(c.Name))
	c.FirstNameNorm = name.First
	c.LastNameNorm = name.Last
	c.FullNameNorm = name.Full

	c.SoundexLast = nil
	c.MetaphoneLast = nil
	if name.Last != nil {
		if code := phonetic.Soundex(*name.Last); code != "" {
			c.SoundexLast = &code
		}
		if code := phonetic.Metaphone(*name.Last); code != "" {
			c.MetaphoneLast = &code
		}
	}

	email := NormalizeEmail(deref(c.PrimaryEmail))
	c.EmailNorm = email.Norm
	c.EmailLocal = email.Local
	c.EmailDomain = email.Domain

	c.PhoneE164 = NormalizePhone(deref(c.PrimaryPhone))
	c.CompanyNorm = Base(deref(c.Company))
	c.WebsiteRoot = NormalizeWebsite(deref(c.Website))

	addr := NormalizeAddress(deref(c.Address))
	c.AddressNorm = addr.Norm
	c.ZipNorm = addr.Zip

	c.OtherEmailsNorm = EmailSet(append([]string{deref(c.SecondaryEmail)}, c.OtherEmails...)...)
	c.OtherPhonesNorm = PhoneSet(append([]string{deref(c.SecondaryPhone)}, c.OtherPhones...)...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
