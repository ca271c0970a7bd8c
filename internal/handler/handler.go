// Package handler contains the HTTP handlers of the dealspot API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealspot/dealspot-system/internal/middleware"
	"github.com/dealspot/dealspot-system/internal/model"
	"github.com/dealspot/dealspot-system/internal/repository"
	"github.com/dealspot/dealspot-system/internal/service"
	"github.com/dealspot/dealspot-system/internal/validation"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateVendorProfile(ctx context.Context, userID int64, name string) (*model.VendorProfile, error)
	CreateOffer(ctx context.Context, userID int64, offer *model.Offer) error
	GetOffer(ctx context.Context, offerID uuid.UUID) (*model.Offer, error)
	ListOffers(ctx context.Context, city string) ([]model.Offer, error)
	Claim(ctx context.Context, userID int64, offerID uuid.UUID) (*model.RedemptionDetails, error)
	VerifyAsVendor(ctx context.Context, userID int64, redemptionID uuid.UUID) (*model.RedemptionDetails, error)
	ListRedemptions(ctx context.Context, userID int64) ([]model.RedemptionDetails, error)
}

// Handler implements the HTTP handlers of the dealspot API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register handles new user registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login authenticates a user and sets the auth cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type createVendorRequest struct {
	Name string `json:"name"`
}

type vendorResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateVendor creates a vendor profile for the current user.
func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	vendor, err := h.service.CreateVendorProfile(r.Context(), userID, req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrVendorExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create vendor error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, vendorResponse{
		ID:   vendor.ID.String(),
		Name: vendor.Name,
	})
}

type createOfferRequest struct {
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	City         string  `json:"city"`
	Percentage   *int    `json:"percentage,omitempty"`
	Code         *string `json:"code,omitempty"`
	ValueCents   *int64  `json:"value_cents,omitempty"`
	VoucherLimit int     `json:"voucher_limit"`
}

type offerResponse struct {
	ID                  string  `json:"id"`
	VendorID            string  `json:"vendor_id"`
	City                string  `json:"city"`
	Type                string  `json:"type"`
	Title               string  `json:"title"`
	Percentage          *int    `json:"percentage,omitempty"`
	Code                *string `json:"code,omitempty"`
	ValueCents          *int64  `json:"value_cents,omitempty"`
	VoucherLimit        int     `json:"voucher_limit"`
	VoucherClaimedCount int     `json:"voucher_claimed_count"`
	CreatedAt           string  `json:"created_at"`
}

func toOfferResponse(o *model.Offer) offerResponse {
	return offerResponse{
		ID:                  o.ID.String(),
		VendorID:            o.VendorID.String(),
		City:                o.City,
		Type:                string(o.Type),
		Title:               o.Title,
		Percentage:          o.Percentage,
		Code:                o.Code,
		ValueCents:          o.ValueCents,
		VoucherLimit:        o.VoucherLimit,
		VoucherClaimedCount: o.VoucherClaimedCount,
		CreatedAt:           o.CreatedAt.Format(time.RFC3339),
	}
}

// CreateOffer publishes a new offer for the current user's vendor profile.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payload := validation.OfferPayload{
		Type:         model.OfferType(req.Type),
		Percentage:   req.Percentage,
		Code:         req.Code,
		ValueCents:   req.ValueCents,
		VoucherLimit: req.VoucherLimit,
	}
	if !validation.IsValidOfferPayload(payload) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	offer := &model.Offer{
		City:         req.City,
		Type:         model.OfferType(req.Type),
		Title:        req.Title,
		Percentage:   req.Percentage,
		Code:         req.Code,
		ValueCents:   req.ValueCents,
		VoucherLimit: req.VoucherLimit,
	}

	if err := h.service.CreateOffer(r.Context(), userID, offer); err != nil {
		if errors.Is(err, service.ErrNotAVendor) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.logger.Error("create offer error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toOfferResponse(offer))
}

// GetOffer returns a single offer.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := uuid.Parse(chi.URLParam(r, "offerID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	offer, err := h.service.GetOffer(r.Context(), offerID)
	if err != nil {
		if errors.Is(err, repository.ErrOfferNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get offer error", zap.Error(err), zap.String("offerID", offerID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toOfferResponse(offer))
}

// ListOffers returns published offers, optionally filtered by city.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListOffers(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		h.logger.Error("list offers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]offerResponse, 0, len(offers))
	for i := range offers {
		resp = append(resp, toOfferResponse(&offers[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type redemptionResponse struct {
	ID         string         `json:"id"`
	UserID     int64          `json:"user_id"`
	IsUsed     bool           `json:"is_used"`
	RedeemedAt *string        `json:"redeemed_at,omitempty"`
	CreatedAt  string         `json:"created_at"`
	Offer      offerResponse  `json:"offer"`
	Vendor     vendorResponse `json:"vendor"`
}

func toRedemptionResponse(d *model.RedemptionDetails) redemptionResponse {
	resp := redemptionResponse{
		ID:        d.Redemption.ID.String(),
		UserID:    d.Redemption.UserID,
		IsUsed:    d.Redemption.IsUsed,
		CreatedAt: d.Redemption.CreatedAt.Format(time.RFC3339),
		Offer:     toOfferResponse(&d.Offer),
		Vendor: vendorResponse{
			ID:   d.Vendor.ID.String(),
			Name: d.Vendor.Name,
		},
	}
	if d.Redemption.RedeemedAt != nil {
		s := d.Redemption.RedeemedAt.Format(time.RFC3339)
		resp.RedeemedAt = &s
	}
	return resp
}

// ClaimOffer reserves one voucher of the offer for the current user.
func (h *Handler) ClaimOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := uuid.Parse(chi.URLParam(r, "offerID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	details, err := h.service.Claim(r.Context(), userID, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			http.Error(w, "offer already claimed", http.StatusConflict)
			return
		}
		if errors.Is(err, repository.ErrOfferUnavailable) {
			http.Error(w, "offer sold out or unavailable", http.StatusBadRequest)
			return
		}
		h.logger.Error("claim offer error", zap.Error(err),
			zap.Int64("userID", userID), zap.String("offerID", offerID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toRedemptionResponse(details))
}

// VerifyRedemption marks a redemption as used by the current user's vendor
// profile.
func (h *Handler) VerifyRedemption(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	redemptionID, err := uuid.Parse(chi.URLParam(r, "redemptionID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	details, err := h.service.VerifyAsVendor(r.Context(), userID, redemptionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAVendor):
			http.Error(w, "not a vendor", http.StatusForbidden)
		case errors.Is(err, repository.ErrNotOfferOwner):
			http.Error(w, "offer belongs to another vendor", http.StatusForbidden)
		case errors.Is(err, repository.ErrRedemptionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRedemptionUsed):
			http.Error(w, "redemption already used", http.StatusConflict)
		default:
			h.logger.Error("verify redemption error", zap.Error(err),
				zap.Int64("userID", userID), zap.String("redemptionID", redemptionID.String()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toRedemptionResponse(details))
}

// GetRedemptions returns the current user's claims.
func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	redemptions, err := h.service.ListRedemptions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get redemptions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(redemptions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]redemptionResponse, 0, len(redemptions))
	for i := range redemptions {
		resp = append(resp, toRedemptionResponse(&redemptions[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
