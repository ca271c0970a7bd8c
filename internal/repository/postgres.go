// Package repository implements data access on top of PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dealspot/dealspot-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists is returned when creating a user with an already taken login.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")
	// ErrVendorExists is returned when a user already has a vendor profile.
	ErrVendorExists = errors.New("vendor profile already exists")
	// ErrVendorNotFound is returned when a user has no vendor profile.
	ErrVendorNotFound = errors.New("vendor profile not found")
	// ErrOfferNotFound is returned when an offer cannot be found.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOfferUnavailable is returned when the conditional increment reserves
	// nothing: the offer is missing, not claimable, or its limit is reached.
	ErrOfferUnavailable = errors.New("offer sold out or unavailable")
	// ErrAlreadyClaimed is returned when a user claims the same offer twice.
	ErrAlreadyClaimed = errors.New("offer already claimed by this user")
	// ErrRedemptionNotFound is returned when a redemption cannot be found.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrRedemptionUsed is returned when a redemption was already verified.
	ErrRedemptionUsed = errors.New("redemption already used")
	// ErrNotOfferOwner is returned when a vendor verifies a redemption of an
	// offer owned by another vendor.
	ErrNotOfferOwner = errors.New("offer belongs to another vendor")
)

// PostgresRepository provides access to the data stored in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the database
// schema through migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Serialization failures and deadlocks are worth retrying; everything
		// else, including domain errors, is returned as is.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser creates a new user.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin returns a user by login.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateVendorProfile creates a vendor profile for the given user.
func (r *PostgresRepository) CreateVendorProfile(ctx context.Context, userID int64, name string) (*model.VendorProfile, error) {
	v := model.VendorProfile{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO vendor_profiles (id, user_id, name) VALUES ($1, $2, $3) RETURNING created_at`,
		v.ID, v.UserID, v.Name,
	).Scan(&v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrVendorExists
		}
		return nil, fmt.Errorf("create vendor profile: %w", err)
	}

	return &v, nil
}

// GetVendorProfileByUserID returns the vendor profile owned by the given user.
func (r *PostgresRepository) GetVendorProfileByUserID(ctx context.Context, userID int64) (*model.VendorProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, created_at FROM vendor_profiles WHERE user_id = $1`,
		userID,
	)

	var v model.VendorProfile
	err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("get vendor profile: %w", err)
	}

	return &v, nil
}

// CreateOffer stores a new offer. The inventory counters start at the values
// supplied by the caller (a zero claimed count for freshly published offers).
func (r *PostgresRepository) CreateOffer(ctx context.Context, offer *model.Offer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO offers (id, vendor_id, city, type, title, percentage, code, value_cents, voucher_limit, voucher_claimed_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		offer.ID, offer.VendorID, offer.City, string(offer.Type), offer.Title,
		offer.Percentage, offer.Code, offer.ValueCents,
		offer.VoucherLimit, offer.VoucherClaimedCount,
	).Scan(&offer.CreatedAt)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	return nil
}

// GetOfferByID returns an offer by its identifier.
func (r *PostgresRepository) GetOfferByID(ctx context.Context, offerID uuid.UUID) (*model.Offer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, vendor_id, city, type, title, percentage, code, value_cents,
		        voucher_limit, voucher_claimed_count, created_at
		 FROM offers WHERE id = $1`,
		offerID,
	)

	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}

	return o, nil
}

// ListOffers returns offers, optionally filtered by city, newest first.
func (r *PostgresRepository) ListOffers(ctx context.Context, city string) ([]model.Offer, error) {
	query := `SELECT id, vendor_id, city, type, title, percentage, code, value_cents,
	                 voucher_limit, voucher_claimed_count, created_at
	          FROM offers`
	args := []any{}
	if city != "" {
		query += ` WHERE city = $1`
		args = append(args, city)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return offers, nil
}

func scanOffer(row pgx.Row) (*model.Offer, error) {
	var o model.Offer
	var offerType string
	err := row.Scan(&o.ID, &o.VendorID, &o.City, &offerType, &o.Title,
		&o.Percentage, &o.Code, &o.ValueCents,
		&o.VoucherLimit, &o.VoucherClaimedCount, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = model.OfferType(offerType)
	return &o, nil
}

// ClaimOffer reserves one unit of the offer's voucher inventory for the user
// and records the redemption. The whole sequence runs in one transaction:
// a crash after the reservation rolls it back instead of leaking inventory.
//
// The reservation itself is a single conditional UPDATE, so the database
// serializes concurrent claims for the same offer and never admits more
// than voucher_limit of them. The UNIQUE (offer_id, user_id) constraint is
// the authoritative duplicate guard; the preliminary lookup only exists to
// answer the common repeat-claim case without burning the row lock.
func (r *PostgresRepository) ClaimOffer(ctx context.Context, userID int64, offerID uuid.UUID) (uuid.UUID, error) {
	var redemptionID uuid.UUID

	err := r.withRetry(ctx, func() error {
		id, err := r.claimOfferTx(ctx, userID, offerID)
		if err != nil {
			return err
		}
		redemptionID = id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return redemptionID, nil
}

func (r *PostgresRepository) claimOfferTx(ctx context.Context, userID int64, offerID uuid.UUID) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM offer_redemptions WHERE offer_id = $1 AND user_id = $2)`,
		offerID, userID,
	).Scan(&exists)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check existing claim: %w", err)
	}
	if exists {
		return uuid.Nil, ErrAlreadyClaimed
	}

	// The check and the increment are one statement on purpose: zero rows
	// means the offer is missing, not claimable, or already at its limit,
	// and the two cases are indistinguishable at this layer.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE offers
		 SET voucher_claimed_count = voucher_claimed_count + 1
		 WHERE id = $1 AND voucher_claimed_count < voucher_limit`,
		offerID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reserve inventory: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return uuid.Nil, ErrOfferUnavailable
	}

	redemptionID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO offer_redemptions (id, offer_id, user_id) VALUES ($1, $2, $3)`,
		redemptionID, offerID, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Two first-time claims from the same user raced past the
			// pre-check; the constraint settles it.
			return uuid.Nil, ErrAlreadyClaimed
		}
		return uuid.Nil, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit tx: %w", err)
	}

	return redemptionID, nil
}

const redemptionDetailsQuery = `
	SELECT r.id, r.offer_id, r.user_id, r.is_used, r.redeemed_at, r.created_at,
	       o.id, o.vendor_id, o.city, o.type, o.title, o.percentage, o.code, o.value_cents,
	       o.voucher_limit, o.voucher_claimed_count, o.created_at,
	       v.id, v.user_id, v.name, v.created_at
	FROM offer_redemptions r
	JOIN offers o ON o.id = r.offer_id
	JOIN vendor_profiles v ON v.id = o.vendor_id`

func scanRedemptionDetails(row pgx.Row) (*model.RedemptionDetails, error) {
	var d model.RedemptionDetails
	var offerType string
	err := row.Scan(
		&d.Redemption.ID, &d.Redemption.OfferID, &d.Redemption.UserID,
		&d.Redemption.IsUsed, &d.Redemption.RedeemedAt, &d.Redemption.CreatedAt,
		&d.Offer.ID, &d.Offer.VendorID, &d.Offer.City, &offerType, &d.Offer.Title,
		&d.Offer.Percentage, &d.Offer.Code, &d.Offer.ValueCents,
		&d.Offer.VoucherLimit, &d.Offer.VoucherClaimedCount, &d.Offer.CreatedAt,
		&d.Vendor.ID, &d.Vendor.UserID, &d.Vendor.Name, &d.Vendor.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Offer.Type = model.OfferType(offerType)
	return &d, nil
}

// GetRedemptionDetails returns a redemption joined with its offer and the
// offer's vendor.
func (r *PostgresRepository) GetRedemptionDetails(ctx context.Context, redemptionID uuid.UUID) (*model.RedemptionDetails, error) {
	row := r.pool.QueryRow(ctx, redemptionDetailsQuery+` WHERE r.id = $1`, redemptionID)

	d, err := scanRedemptionDetails(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	return d, nil
}

// ListRedemptionsByUser returns the user's redemptions, newest first.
func (r *PostgresRepository) ListRedemptionsByUser(ctx context.Context, userID int64) ([]model.RedemptionDetails, error) {
	rows, err := r.pool.Query(ctx,
		redemptionDetailsQuery+` WHERE r.user_id = $1 ORDER BY r.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	var res []model.RedemptionDetails
	for rows.Next() {
		d, err := scanRedemptionDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// VerifyRedemption marks a redemption as used on behalf of the vendor that
// owns its offer. The redemption row is locked for the duration of the
// transaction, so a double scan cannot report success twice: the second
// caller finds is_used already set and gets ErrRedemptionUsed.
func (r *PostgresRepository) VerifyRedemption(ctx context.Context, vendorID, redemptionID uuid.UUID) (*model.RedemptionDetails, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID uuid.UUID
	var isUsed bool
	err = tx.QueryRow(ctx,
		`SELECT o.vendor_id, r.is_used
		 FROM offer_redemptions r
		 JOIN offers o ON o.id = r.offer_id
		 WHERE r.id = $1
		 FOR UPDATE OF r`,
		redemptionID,
	).Scan(&ownerID, &isUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("load redemption for verify: %w", err)
	}

	if ownerID != vendorID {
		return nil, ErrNotOfferOwner
	}
	if isUsed {
		return nil, ErrRedemptionUsed
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE offer_redemptions SET is_used = true, redeemed_at = now()
		 WHERE id = $1 AND NOT is_used`,
		redemptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark redemption used: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrRedemptionUsed
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.GetRedemptionDetails(ctx, redemptionID)
}
