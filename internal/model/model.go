// Package model contains the domain entities of the dealspot service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Its role (customer or vendor) is derived
// from whether a VendorProfile exists for it, not stored on the row.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// VendorProfile marks a user as a vendor and owns that vendor's offers.
type VendorProfile struct {
	ID        uuid.UUID
	UserID    int64
	Name      string
	CreatedAt time.Time
}

// OfferType discriminates the offer payload.
type OfferType string

const (
	OfferTypeDiscount OfferType = "discount"
	OfferTypeCoupon   OfferType = "coupon"
	OfferTypeVoucher  OfferType = "voucher"
)

// Offer is a promotion published by a vendor. Exactly one of the payload
// fields is meaningful, selected by Type: Percentage for discounts, Code
// for coupons, ValueCents for vouchers. Only voucher offers with
// VoucherLimit > 0 take part in the claim flow; their claimed count never
// exceeds the limit.
type Offer struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	City     string
	Type     OfferType
	Title    string

	Percentage *int
	Code       *string
	ValueCents *int64

	VoucherLimit        int
	VoucherClaimedCount int

	CreatedAt time.Time
}

// Redemption is a single user's claim on a single offer. IsUsed flips to
// true at most once, when the owning vendor verifies the claim in person;
// RedeemedAt is set at the same moment and never changes afterwards.
type Redemption struct {
	ID         uuid.UUID
	OfferID    uuid.UUID
	UserID     int64
	IsUsed     bool
	RedeemedAt *time.Time
	CreatedAt  time.Time
}

// RedemptionDetails is a redemption joined with its offer and the offer's
// vendor, as returned to API callers.
type RedemptionDetails struct {
	Redemption Redemption
	Offer      Offer
	Vendor     VendorProfile
}
