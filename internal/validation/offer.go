// Package validation contains input validation helpers.
package validation

import (
	"github.com/dealspot/dealspot-system/internal/model"
)

// OfferPayload carries the type-dependent fields of an offer create request.
type OfferPayload struct {
	Type         model.OfferType
	Percentage   *int
	Code         *string
	ValueCents   *int64
	VoucherLimit int
}

// IsValidOfferPayload reports whether the payload matches its declared type:
// discounts need a percentage between 0 and 100, coupons a non-empty code,
// vouchers a positive value and a positive claim limit. Fields belonging to
// another type must be absent.
func IsValidOfferPayload(p OfferPayload) bool {
	switch p.Type {
	case model.OfferTypeDiscount:
		if p.Percentage == nil || p.Code != nil || p.ValueCents != nil {
			return false
		}
		return *p.Percentage >= 0 && *p.Percentage <= 100 && p.VoucherLimit == 0
	case model.OfferTypeCoupon:
		if p.Code == nil || p.Percentage != nil || p.ValueCents != nil {
			return false
		}
		return *p.Code != "" && p.VoucherLimit == 0
	case model.OfferTypeVoucher:
		if p.ValueCents == nil || p.Percentage != nil || p.Code != nil {
			return false
		}
		return *p.ValueCents > 0 && p.VoucherLimit > 0
	default:
		return false
	}
}
