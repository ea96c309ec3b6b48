package models

import (
	"time"

	"github.com/lib/pq"
)

// Contact is the CRM entity under resolution. Raw fields come from the CRUD
// layer; normalized columns are derived by the normalizer and are always a
// pure function of the current raw fields.
type Contact struct {
	ID             int64   `json:"id" db:"id"`
	Name           *string `json:"name,omitempty" db:"name"`
	PrimaryEmail   *string `json:"primary_email,omitempty" db:"primary_email"`
	SecondaryEmail *string `json:"secondary_email,omitempty" db:"secondary_email"`
	PrimaryPhone   *string `json:"primary_phone,omitempty" db:"primary_phone"`
	SecondaryPhone *string `json:"secondary_phone,omitempty" db:"secondary_phone"`
	Company        *string `json:"company,omitempty" db:"company"`
	Website        *string `json:"website,omitempty" db:"website"`
	Address        *string `json:"address,omitempty" db:"address"`
	Notes          *string `json:"notes,omitempty" db:"notes"`

	OtherEmails pq.StringArray `json:"other_emails,omitempty" db:"other_emails"`
	OtherPhones pq.StringArray `json:"other_phones,omitempty" db:"other_phones"`

	FirstNameNorm   *string        `json:"first_name_norm,omitempty" db:"first_name_norm"`
	LastNameNorm    *string        `json:"last_name_norm,omitempty" db:"last_name_norm"`
	FullNameNorm    *string        `json:"full_name_norm,omitempty" db:"full_name_norm"`
	EmailNorm       *string        `json:"email_norm,omitempty" db:"email_norm"`
	EmailLocal      *string        `json:"email_local,omitempty" db:"email_local"`
	EmailDomain     *string        `json:"email_domain,omitempty" db:"email_domain"`
	PhoneE164       *string        `json:"phone_e164,omitempty" db:"phone_e164"`
	CompanyNorm     *string        `json:"company_norm,omitempty" db:"company_norm"`
	WebsiteRoot     *string        `json:"website_root,omitempty" db:"website_root"`
	AddressNorm     *string        `json:"address_norm,omitempty" db:"address_norm"`
	ZipNorm         *string        `json:"zip_norm,omitempty" db:"zip_norm"`
	OtherEmailsNorm pq.StringArray `json:"other_emails_norm,omitempty" db:"other_emails_norm"`
	OtherPhonesNorm pq.StringArray `json:"other_phones_norm,omitempty" db:"other_phones_norm"`
	SoundexLast     *string        `json:"soundex_last,omitempty" db:"soundex_last"`
	MetaphoneLast   *string        `json:"metaphone_last,omitempty" db:"metaphone_last"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Completeness counts the filled core fields. Used for survivor selection.
func (c *Contact) Completeness() int {
	count := 0
	for _, f := range []*string{c.Name, c.PrimaryEmail, c.PrimaryPhone, c.Company, c.Website, c.Address} {
		if f != nil && *f != "" {
			count++
		}
	}
	return count
}

// EmailSet returns every normalized email on the contact, deduplicated.
func (c *Contact) EmailSet() []string {
	return dedupeSet(c.EmailNorm, c.OtherEmailsNorm)
}

// PhoneSet returns every normalized phone on the contact, deduplicated.
func (c *Contact) PhoneSet() []string {
	return dedupeSet(c.PhoneE164, c.OtherPhonesNorm)
}

func dedupeSet(primary *string, rest []string) []string {
	seen := make(map[string]bool, len(rest)+1)
	result := make([]string, 0, len(rest)+1)
	if primary != nil && *primary != "" {
		seen[*primary] = true
		result = append(result, *primary)
	}
	for _, v := range rest {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	return result
}

// ContactSummary is the slim projection joined onto candidate listings for
// operator review.
type ContactSummary struct {
	ID           int64   `json:"id" db:"id"`
	Name         *string `json:"name,omitempty" db:"name"`
	PrimaryEmail *string `json:"primary_email,omitempty" db:"primary_email"`
	PrimaryPhone *string `json:"primary_phone,omitempty" db:"primary_phone"`
	Company      *string `json:"company,omitempty" db:"company"`
}

// Touchpoint is a child record owned by a contact. Ownership moves to the
// survivor during a merge; this is the only place it changes after creation.
type Touchpoint struct {
	ID         int64     `json:"id" db:"id"`
	ContactID  int64     `json:"contact_id" db:"contact_id"`
	Kind       string    `json:"kind" db:"kind"`
	Note       *string   `json:"note,omitempty" db:"note"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
