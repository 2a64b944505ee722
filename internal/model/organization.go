package model

import "time"

// OrganizationSettings holds per-user business details shown on invoices and
// the organization settings page. One row per user, created lazily on first
// read.
type OrganizationSettings struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	BusinessName    *string   `json:"businessName" db:"business_name"`
	BusinessEmail   *string   `json:"businessEmail" db:"business_email"`
	BusinessPhone   *string   `json:"businessPhone" db:"business_phone"`
	BusinessWebsite *string   `json:"businessWebsite" db:"business_website"`
	AddressLine1    *string   `json:"addressLine1" db:"address_line1"`
	AddressLine2    *string   `json:"addressLine2" db:"address_line2"`
	City            *string   `json:"city" db:"city"`
	State           *string   `json:"state" db:"state"`
	Postcode        *string   `json:"postcode" db:"postcode"`
	Country         *string   `json:"country" db:"country"`
	Timezone        *string   `json:"timezone" db:"timezone"`
	ABN             *string   `json:"abn" db:"abn"`
	TaxID           *string   `json:"taxId" db:"tax_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}
