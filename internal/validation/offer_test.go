package validation

import (
	"testing"

	"github.com/dealspot/dealspot-system/internal/model"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestIsValidOfferPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload OfferPayload
		want    bool
	}{
		{
			name: "valid discount",
			payload: OfferPayload{
				Type:       model.OfferTypeDiscount,
				Percentage: intPtr(25),
			},
			want: true,
		},
		{
			name: "discount percentage over 100",
			payload: OfferPayload{
				Type:       model.OfferTypeDiscount,
				Percentage: intPtr(120),
			},
			want: false,
		},
		{
			name: "discount percentage negative",
			payload: OfferPayload{
				Type:       model.OfferTypeDiscount,
				Percentage: intPtr(-1),
			},
			want: false,
		},
		{
			name: "discount without percentage",
			payload: OfferPayload{
				Type: model.OfferTypeDiscount,
			},
			want: false,
		},
		{
			name: "discount with voucher limit",
			payload: OfferPayload{
				Type:         model.OfferTypeDiscount,
				Percentage:   intPtr(10),
				VoucherLimit: 5,
			},
			want: false,
		},
		{
			name: "valid coupon",
			payload: OfferPayload{
				Type: model.OfferTypeCoupon,
				Code: strPtr("SUMMER10"),
			},
			want: true,
		},
		{
			name: "coupon with empty code",
			payload: OfferPayload{
				Type: model.OfferTypeCoupon,
				Code: strPtr(""),
			},
			want: false,
		},
		{
			name: "coupon with foreign payload",
			payload: OfferPayload{
				Type:       model.OfferTypeCoupon,
				Code:       strPtr("SUMMER10"),
				Percentage: intPtr(10),
			},
			want: false,
		},
		{
			name: "valid voucher",
			payload: OfferPayload{
				Type:         model.OfferTypeVoucher,
				ValueCents:   int64Ptr(500),
				VoucherLimit: 100,
			},
			want: true,
		},
		{
			name: "voucher without limit",
			payload: OfferPayload{
				Type:       model.OfferTypeVoucher,
				ValueCents: int64Ptr(500),
			},
			want: false,
		},
		{
			name: "voucher with non-positive value",
			payload: OfferPayload{
				Type:         model.OfferTypeVoucher,
				ValueCents:   int64Ptr(0),
				VoucherLimit: 10,
			},
			want: false,
		},
		{
			name: "unknown type",
			payload: OfferPayload{
				Type: model.OfferType("lottery"),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidOfferPayload(tt.payload); got != tt.want {
				t.Fatalf("IsValidOfferPayload() = %v, want %v", got, tt.want)
			}
		})
	}
}
