// Package service implements the business logic of the dealspot service.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"

	"github.com/dealspot/dealspot-system/internal/model"
	"github.com/dealspot/dealspot-system/internal/repository"
)

// ErrNotAVendor is returned when a verification is attempted by a user that
// has no vendor profile.
var ErrNotAVendor = errors.New("user is not a vendor")

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateVendorProfile(ctx context.Context, userID int64, name string) (*model.VendorProfile, error)
	GetVendorProfileByUserID(ctx context.Context, userID int64) (*model.VendorProfile, error)
	CreateOffer(ctx context.Context, offer *model.Offer) error
	GetOfferByID(ctx context.Context, offerID uuid.UUID) (*model.Offer, error)
	ListOffers(ctx context.Context, city string) ([]model.Offer, error)
	ClaimOffer(ctx context.Context, userID int64, offerID uuid.UUID) (uuid.UUID, error)
	GetRedemptionDetails(ctx context.Context, redemptionID uuid.UUID) (*model.RedemptionDetails, error)
	ListRedemptionsByUser(ctx context.Context, userID int64) ([]model.RedemptionDetails, error)
	VerifyRedemption(ctx context.Context, vendorID, redemptionID uuid.UUID) (*model.RedemptionDetails, error)
}

// Service contains the business logic of the dealspot service.
type Service struct {
	repo Repository
}

// NewService creates a service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close releases the service's resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser registers a new user.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser checks the user's credentials and returns their id.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateVendorProfile turns the user into a vendor.
func (s *Service) CreateVendorProfile(ctx context.Context, userID int64, name string) (*model.VendorProfile, error) {
	return s.repo.CreateVendorProfile(ctx, userID, name)
}

// CreateOffer publishes a new offer owned by the caller's vendor profile.
func (s *Service) CreateOffer(ctx context.Context, userID int64, offer *model.Offer) error {
	vendor, err := s.ResolveVendorForUser(ctx, userID)
	if err != nil {
		return err
	}

	offer.VendorID = vendor.ID
	offer.VoucherClaimedCount = 0

	return s.repo.CreateOffer(ctx, offer)
}

// GetOffer returns an offer by id.
func (s *Service) GetOffer(ctx context.Context, offerID uuid.UUID) (*model.Offer, error) {
	return s.repo.GetOfferByID(ctx, offerID)
}

// ListOffers returns offers, optionally filtered by city.
func (s *Service) ListOffers(ctx context.Context, city string) ([]model.Offer, error) {
	return s.repo.ListOffers(ctx, city)
}

// Claim reserves one unit of the offer's inventory for the user and returns
// the created redemption together with the offer and its vendor. The
// repository performs the duplicate check, the atomic reservation and the
// redemption insert; this layer only assembles the response.
func (s *Service) Claim(ctx context.Context, userID int64, offerID uuid.UUID) (*model.RedemptionDetails, error) {
	redemptionID, err := s.repo.ClaimOffer(ctx, userID, offerID)
	if err != nil {
		return nil, err
	}

	return s.repo.GetRedemptionDetails(ctx, redemptionID)
}

// Verify marks a redemption as used on behalf of the given vendor. The
// transition is one-shot: a second call fails with ErrRedemptionUsed no
// matter who makes it.
func (s *Service) Verify(ctx context.Context, vendorID, redemptionID uuid.UUID) (*model.RedemptionDetails, error) {
	return s.repo.VerifyRedemption(ctx, vendorID, redemptionID)
}

// VerifyAsVendor resolves the user's vendor profile and verifies the
// redemption on its behalf. Users without a vendor profile get ErrNotAVendor.
func (s *Service) VerifyAsVendor(ctx context.Context, userID int64, redemptionID uuid.UUID) (*model.RedemptionDetails, error) {
	vendor, err := s.ResolveVendorForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.Verify(ctx, vendor.ID, redemptionID)
}

// ResolveVendorForUser returns the user's vendor profile, or ErrNotAVendor
// if the user has none.
func (s *Service) ResolveVendorForUser(ctx context.Context, userID int64) (*model.VendorProfile, error) {
	vendor, err := s.repo.GetVendorProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrVendorNotFound) {
			return nil, ErrNotAVendor
		}
		return nil, err
	}
	return vendor, nil
}

// ResolveOfferOwnership loads an offer and checks that it belongs to the
// user's vendor profile. It backs the offer edit and delete paths, which
// apply the same ownership comparison as verification.
func (s *Service) ResolveOfferOwnership(ctx context.Context, offerID uuid.UUID, userID int64) (*model.Offer, error) {
	offer, err := s.repo.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	vendor, err := s.ResolveVendorForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if offer.VendorID != vendor.ID {
		return nil, repository.ErrNotOfferOwner
	}

	return offer, nil
}

// ListRedemptions returns the user's redemptions.
func (s *Service) ListRedemptions(ctx context.Context, userID int64) ([]model.RedemptionDetails, error) {
	return s.repo.ListRedemptionsByUser(ctx, userID)
}
