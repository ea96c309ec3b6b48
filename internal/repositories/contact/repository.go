package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

var columns = []string{
	"id", "name", "primary_email", "secondary_email", "primary_phone", "secondary_phone",
	"company", "website", "address", "notes", "other_emails", "other_phones",
	"first_name_norm", "last_name_norm", "full_name_norm", "email_norm", "email_local", "email_domain",
	"phone_e164", "company_norm", "website_root", "address_norm", "zip_norm",
	"other_emails_norm", "other_phones_norm", "soundex_last", "metaphone_last",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying store so engines can open transactions spanning
// multiple repositories.
func (r *Repository) DB() database.DB {
	return r.db
}

// Get retrieves a contact by id. Soft-deleted contacts are not returned.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contacts")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)

	var contact models.Contact
	if err := exec.GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %d not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to get contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}
	return &contact, nil
}

// Create inserts a new contact with raw fields only; normalized columns are
// populated by a follow-up UpdateNormalized.
func (r *Repository) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	query := `
		INSERT INTO contacts (name, primary_email, secondary_email, primary_phone, secondary_phone, company, website, address, notes, other_emails, other_phones, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	exec := database.ExecutorFromContext(ctx, r.db)
	row := exec.QueryRowxContext(ctx, query,
		contact.Name, contact.PrimaryEmail, contact.SecondaryEmail, contact.PrimaryPhone, contact.SecondaryPhone,
		contact.Company, contact.Website, contact.Address, contact.Notes,
		contact.OtherEmails, contact.OtherPhones, contact.CreatedAt, contact.UpdatedAt,
	)
	if err := row.Scan(&contact.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contact")
	}
	return contact, nil
}

// UpdateNormalized writes the derived comparison columns for a contact. Raw
// fields are untouched; updated_at is untouched so normalization backfills do
// not masquerade as user edits.
func (r *Repository) UpdateNormalized(ctx context.Context, contact *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateNormalized")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("contacts")
	sb.Set(
		sb.Assign("first_name_norm", contact.FirstNameNorm),
		sb.Assign("last_name_norm", contact.LastNameNorm),
		sb.Assign("full_name_norm", contact.FullNameNorm),
		sb.Assign("email_norm", contact.EmailNorm),
		sb.Assign("email_local", contact.EmailLocal),
		sb.Assign("email_domain", contact.EmailDomain),
		sb.Assign("phone_e164", contact.PhoneE164),
		sb.Assign("company_norm", contact.CompanyNorm),
		sb.Assign("website_root", contact.WebsiteRoot),
		sb.Assign("address_norm", contact.AddressNorm),
		sb.Assign("zip_norm", contact.ZipNorm),
		sb.Assign("other_emails_norm", contact.OtherEmailsNorm),
		sb.Assign("other_phones_norm", contact.OtherPhonesNorm),
		sb.Assign("soundex_last", contact.SoundexLast),
		sb.Assign("metaphone_last", contact.MetaphoneLast),
	)
	sb.Where(sb.Equal("id", contact.ID))

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contact.ID}).Error("Failed to update normalized fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update normalized fields")
	}
	return nil
}

// UpdateMerged persists a survivor after a merge: raw fields, arrays, notes,
// the recomputed normalized columns, and a fresh updated_at.
func (r *Repository) UpdateMerged(ctx context.Context, contact *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateMerged")
	defer span.End()

	contact.UpdatedAt = time.Now().UTC()

	sb := database.NewUpdateBuilder()
	sb.Update("contacts")
	sb.Set(
		sb.Assign("name", contact.Name),
		sb.Assign("primary_email", contact.PrimaryEmail),
		sb.Assign("secondary_email", contact.SecondaryEmail),
		sb.Assign("primary_phone", contact.PrimaryPhone),
		sb.Assign("secondary_phone", contact.SecondaryPhone),
		sb.Assign("company", contact.Company),
		sb.Assign("website", contact.Website),
		sb.Assign("address", contact.Address),
		sb.Assign("notes", contact.Notes),
		sb.Assign("other_emails", contact.OtherEmails),
		sb.Assign("other_phones", contact.OtherPhones),
		sb.Assign("first_name_norm", contact.FirstNameNorm),
		sb.Assign("last_name_norm", contact.LastNameNorm),
		sb.Assign("full_name_norm", contact.FullNameNorm),
		sb.Assign("email_norm", contact.EmailNorm),
		sb.Assign("email_local", contact.EmailLocal),
		sb.Assign("email_domain", contact.EmailDomain),
		sb.Assign("phone_e164", contact.PhoneE164),
		sb.Assign("company_norm", contact.CompanyNorm),
		sb.Assign("website_root", contact.WebsiteRoot),
		sb.Assign("address_norm", contact.AddressNorm),
		sb.Assign("zip_norm", contact.ZipNorm),
		sb.Assign("other_emails_norm", contact.OtherEmailsNorm),
		sb.Assign("other_phones_norm", contact.OtherPhonesNorm),
		sb.Assign("soundex_last", contact.SoundexLast),
		sb.Assign("metaphone_last", contact.MetaphoneLast),
		sb.Assign("updated_at", contact.UpdatedAt),
	)
	sb.Where(sb.Equal("id", contact.ID))

	query, args := sb.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contact.ID}).Error("Failed to persist merged contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist merged contact")
	}
	return nil
}

// SoftDelete marks a contact as merged away. The row stays for history.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SoftDelete")
	defer span.End()

	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, "UPDATE contacts SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL", time.Now().UTC(), id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to soft delete contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to soft delete contact")
	}
	return nil
}

// HardDelete removes a contact row entirely. Only used when the caller opts
// out of history retention during a merge.
func (r *Repository) HardDelete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.HardDelete")
	defer span.End()

	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, "DELETE FROM contacts WHERE id = $1", id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": id}).Error("Failed to hard delete contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to hard delete contact")
	}
	return nil
}

// FindBlockingPartners returns the live contacts sharing at least one strong
// signal with the subject. Each rule is expressed on both sides of the
// comparison so the result is symmetric: if o blocks with b, b blocks with o.
func (r *Repository) FindBlockingPartners(ctx context.Context, subject *models.Contact) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindBlockingPartners")
	defer span.End()

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if subject.EmailDomain != nil && subject.EmailLocal != nil && *subject.EmailLocal != "" {
		// same provider, same first letter of the mailbox
		conds = append(conds, fmt.Sprintf("(email_domain = %s AND LEFT(email_local, 1) = %s)",
			arg(*subject.EmailDomain), arg((*subject.EmailLocal)[:1])))
		// same mailbox on a different provider
		conds = append(conds, fmt.Sprintf("email_local = %s", arg(*subject.EmailLocal)))
	}
	if subject.ZipNorm != nil && subject.SoundexLast != nil {
		conds = append(conds, fmt.Sprintf("(zip_norm = %s AND soundex_last = %s)",
			arg(*subject.ZipNorm), arg(*subject.SoundexLast)))
	}
	if subject.WebsiteRoot != nil {
		conds = append(conds, fmt.Sprintf("website_root = %s", arg(*subject.WebsiteRoot)))
	}
	if subject.PhoneE164 != nil {
		conds = append(conds, fmt.Sprintf("RIGHT(phone_e164, 7) = RIGHT(%s, 7)", arg(*subject.PhoneE164)))
	}
	if subject.CompanyNorm != nil {
		conds = append(conds, fmt.Sprintf("LEFT(company_norm, 6) = LEFT(%s, 6)", arg(*subject.CompanyNorm)))
	}
	if subject.FullNameNorm != nil {
		conds = append(conds, fmt.Sprintf("full_name_norm = %s", arg(*subject.FullNameNorm)))
		if subject.MetaphoneLast != nil {
			conds = append(conds, fmt.Sprintf("(LEFT(full_name_norm, 3) = LEFT(%s, 3) AND metaphone_last = %s)",
				arg(*subject.FullNameNorm), arg(*subject.MetaphoneLast)))
		}
	}

	if len(conds) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contacts
		WHERE id <> %s
		  AND deleted_at IS NULL
		  AND (%s)
	`, strings.Join(columns, ", "), arg(subject.ID), strings.Join(conds, " OR "))

	var partners []models.Contact
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &partners, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": subject.ID}).Error("Failed to find blocking partners")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find blocking partners")
	}
	return partners, nil
}

// FindExactEmailMatches returns live contacts sharing any normalized email
// with the subject, across primary and other-email sets.
func (r *Repository) FindExactEmailMatches(ctx context.Context, subject *models.Contact) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindExactEmailMatches")
	defer span.End()

	emails := subject.EmailSet()
	if len(emails) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contacts
		WHERE id <> $1
		  AND deleted_at IS NULL
		  AND (email_norm = ANY($2) OR other_emails_norm && $2)
	`, strings.Join(columns, ", "))

	var matches []models.Contact
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &matches, query, subject.ID, pq.Array(emails)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": subject.ID}).Error("Failed to find exact email matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find exact email matches")
	}
	return matches, nil
}

// FindExactPhoneMatches returns live contacts sharing any E.164 phone with
// the subject, across primary and other-phone sets.
func (r *Repository) FindExactPhoneMatches(ctx context.Context, subject *models.Contact) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindExactPhoneMatches")
	defer span.End()

	phones := subject.PhoneSet()
	if len(phones) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contacts
		WHERE id <> $1
		  AND deleted_at IS NULL
		  AND (phone_e164 = ANY($2) OR other_phones_norm && $2)
	`, strings.Join(columns, ", "))

	var matches []models.Contact
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &matches, query, subject.ID, pq.Array(phones)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": subject.ID}).Error("Failed to find exact phone matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find exact phone matches")
	}
	return matches, nil
}

// ListPage returns up to limit live contacts with id > afterID, ordered by
// id. When updatedSince is set only contacts touched within the window are
// returned, but the cursor still advances over the full id space.
func (r *Repository) ListPage(ctx context.Context, afterID int64, limit int, updatedSince *time.Time) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListPage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contacts")
	where := []string{
		sb.GreaterThan("id", afterID),
		sb.IsNull("deleted_at"),
	}
	if updatedSince != nil {
		where = append(where, sb.GreaterEqualThan("updated_at", *updatedSince))
	}
	sb.Where(where...)
	sb.OrderBy("id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var contacts []models.Contact
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"after_id": afterID}).Error("Failed to list contact page")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	return contacts, nil
}

// ListRange returns live contacts with ids in [fromID, toID], ordered by id.
// Used by normalization backfills.
func (r *Repository) ListRange(ctx context.Context, fromID, toID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListRange")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contacts")
	sb.Where(
		sb.GreaterEqualThan("id", fromID),
		sb.LessEqualThan("id", toID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "to_id": toID}).Error("Failed to list contact range")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	return contacts, nil
}
