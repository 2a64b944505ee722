package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouseio/gatehouse/internal/model"
)

// GetOrganizationSettings returns the settings row for a user.
func (s *Store) GetOrganizationSettings(ctx context.Context, userID string) (*model.OrganizationSettings, error) {
	var o model.OrganizationSettings
	err := s.db.GetContext(ctx, &o,
		s.rebind("SELECT * FROM organization_settings WHERE user_id = ?"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization settings: %w", err)
	}
	return &o, nil
}

// CreateOrganizationSettings inserts a settings row, typically empty on a
// user's first read of the organization page.
func (s *Store) CreateOrganizationSettings(ctx context.Context, o *model.OrganizationSettings) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = now()
	o.UpdatedAt = o.CreatedAt

	const q = `INSERT INTO organization_settings
		(id, user_id, business_name, business_email, business_phone, business_website,
		 address_line1, address_line2, city, state, postcode, country, timezone,
		 abn, tax_id, created_at, updated_at)
		VALUES
		(:id, :user_id, :business_name, :business_email, :business_phone, :business_website,
		 :address_line1, :address_line2, :city, :state, :postcode, :country, :timezone,
		 :abn, :tax_id, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, o); err != nil {
		return fmt.Errorf("insert organization settings: %w", err)
	}
	return nil
}

// UpdateOrganizationSettings replaces the mutable fields of a user's row.
func (s *Store) UpdateOrganizationSettings(ctx context.Context, o *model.OrganizationSettings) error {
	o.UpdatedAt = now()

	const q = `UPDATE organization_settings SET
		business_name = :business_name, business_email = :business_email,
		business_phone = :business_phone, business_website = :business_website,
		address_line1 = :address_line1, address_line2 = :address_line2,
		city = :city, state = :state, postcode = :postcode, country = :country,
		timezone = :timezone, abn = :abn, tax_id = :tax_id, updated_at = :updated_at
		WHERE user_id = :user_id`

	res, err := s.db.NamedExecContext(ctx, q, o)
	if err != nil {
		return fmt.Errorf("update organization settings: %w", err)
	}
	return requireRow(res)
}
