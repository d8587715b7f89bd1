package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/auth"
	"github.com/dmitrijs2005/zoneboard/internal/server/config"
	"github.com/dmitrijs2005/zoneboard/internal/server/entitlements"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/receipts"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CertificateResponse is a signed entitlement certificate.
type CertificateResponse struct {
	Entitlements      []string
	Certificate       string
	OfflineValidUntil string
}

// PublicKeyResponse publishes the certificate verification key.
type PublicKeyResponse struct {
	Algorithm string
	KeyID     string
	PublicKey string
}

// EntitlementService lists entitlements, signs certificates and grants
// entitlements for verified store purchases.
type EntitlementService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	signer      *auth.CertificateSigner
	verifier    entitlements.Verifier
	archive     receipts.Archive
	logger      logging.Logger

	allowlist      entitlements.Allowlist
	entitlementKey string
	ttlDays        int
}

// NewEntitlementService wires the service. A nil verifier disables purchase
// verification and a nil archive disables receipt archiving.
func NewEntitlementService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	cfg *config.Config,
	signer *auth.CertificateSigner,
	verifier entitlements.Verifier,
	archive receipts.Archive,
	logger logging.Logger,
) *EntitlementService {
	if archive == nil {
		archive = receipts.Noop{}
	}
	return &EntitlementService{
		db:             db,
		repomanager:    m,
		signer:         signer,
		verifier:       verifier,
		archive:        archive,
		logger:         logger.With("module", "entitlements"),
		allowlist:      entitlements.NewAllowlist(cfg.AllowedProductIDs...),
		entitlementKey: cfg.EntitlementKey,
		ttlDays:        cfg.CertificateTTLDays,
	}
}

// List returns the keys of the user's active entitlements, never nil.
func (s *EntitlementService) List(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.repomanager.Entitlements(s.db).ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing entitlements: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, e := range rows {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// Certificate signs the user's current entitlements valid from now.
func (s *EntitlementService) Certificate(ctx context.Context, userID string, now time.Time) (*CertificateResponse, error) {
	keys, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload, until, err := entitlements.BuildCertificatePayload(entitlements.CertificateInput{
		UserID:       userID,
		Entitlements: keys,
		TTLDays:      s.ttlDays,
		Now:          &now,
	})
	if err != nil {
		return nil, err
	}

	cert, err := s.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign certificate: %w", err)
	}

	return &CertificateResponse{Entitlements: keys, Certificate: cert, OfflineValidUntil: until}, nil
}

func (s *EntitlementService) PublicKey() PublicKeyResponse {
	return PublicKeyResponse{
		Algorithm: s.signer.Algorithm(),
		KeyID:     s.signer.KeyID(),
		PublicKey: s.signer.PublicKey(),
	}
}

// VerifyGooglePlayPurchase checks a purchase with the store, claims its
// token for userID and grants the configured entitlement. A token already
// claimed by another user is rejected with
// common.ErrPurchaseClaimedByOtherUser, before and after the store call.
// It returns the user's active entitlements.
func (s *EntitlementService) VerifyGooglePlayPurchase(ctx context.Context, userID, productID, purchaseToken string, now time.Time) ([]string, error) {
	productID = strings.TrimSpace(productID)
	purchaseToken = strings.TrimSpace(purchaseToken)
	if productID == "" || purchaseToken == "" {
		return nil, fmt.Errorf("%w: product id and purchase token are required", common.ErrInvalidInput)
	}

	existing, err := s.findClaim(ctx, purchaseToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, existing, userID); err != nil {
		return nil, err
	}

	verified, err := entitlements.VerifyAllowlisted(s.allowlist, productID, func() (*entitlements.VerifiedPurchase, error) {
		if s.verifier == nil {
			return nil, fmt.Errorf("%w: purchase verification is not configured", common.ErrUpstream)
		}
		return s.verifier.Verify(ctx, entitlements.VerifyRequest{ProductID: productID, PurchaseToken: purchaseToken})
	})
	if err != nil {
		if errors.Is(err, common.ErrPurchaseNotActive) && existing != nil {
			s.revoke(ctx, userID, now)
		}
		return nil, err
	}

	grant, err := models.NewEntitlementGrant(userID, s.entitlementKey, models.SourceGooglePlay, now)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.grant(ctx, grant); err != nil {
			return nil, err
		}
		return s.List(ctx, userID)
	}

	claim := models.PurchaseToken{
		ID:            uuid.NewString(),
		UserID:        userID,
		ProductID:     productID,
		PurchaseToken: purchaseToken,
		OrderID:       verified.OrderID,
		PurchaseTime:  verified.PurchaseTime,
		RawResponse:   verified.RawResponse,
		CreatedAt:     now,
	}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Purchases(tx).Create(ctx, claim); err != nil {
			return err
		}
		return s.repomanager.Entitlements(tx).Apply(ctx, grant)
	})
	switch {
	case err == nil:
		s.archiveReceipt(ctx, userID, productID, verified, now)
	case errors.Is(err, common.ErrAlreadyExists):
		// Lost the insert race: the winner owns the token.
		if err := s.recheckOwner(ctx, purchaseToken, userID); err != nil {
			return nil, err
		}
		if err := s.grant(ctx, grant); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("error claiming purchase: %w", err)
	}

	s.logger.Info(ctx, "purchase verified", "user_id", userID, "product_id", productID, "entitlement", s.entitlementKey)
	return s.List(ctx, userID)
}

func (s *EntitlementService) grant(ctx context.Context, g models.EntitlementGrant) error {
	if err := s.repomanager.Entitlements(s.db).Apply(ctx, g); err != nil {
		return fmt.Errorf("error granting entitlement: %w", err)
	}
	return nil
}

func (s *EntitlementService) findClaim(ctx context.Context, purchaseToken string) (*models.PurchaseToken, error) {
	p, err := s.repomanager.Purchases(s.db).FindByToken(ctx, purchaseToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error searching purchase: %w", err)
	}
	return p, nil
}

func (s *EntitlementService) checkOwner(ctx context.Context, claim *models.PurchaseToken, userID string) error {
	var owner *string
	if claim != nil {
		owner = &claim.UserID
	}
	if entitlements.IsClaimedByOtherUser(owner, userID) {
		s.logger.Warn(ctx, "purchase token claimed by another user", "user_id", userID, "purchase_id", claim.ID)
		return common.ErrPurchaseClaimedByOtherUser
	}
	return nil
}

func (s *EntitlementService) recheckOwner(ctx context.Context, purchaseToken, userID string) error {
	claim, err := s.findClaim(ctx, purchaseToken)
	if err != nil {
		return err
	}
	if claim == nil {
		return errors.New("purchase claim vanished after conflict")
	}
	return s.checkOwner(ctx, claim, userID)
}

func (s *EntitlementService) revoke(ctx context.Context, userID string, now time.Time) {
	rev, err := models.NewEntitlementRevocation(userID, s.entitlementKey, now)
	if err == nil {
		err = s.repomanager.Entitlements(s.db).Apply(ctx, rev)
	}
	if err != nil {
		s.logger.Error(ctx, "error revoking entitlement", "user_id", userID, "error", err)
		return
	}
	s.logger.Info(ctx, "entitlement revoked, purchase no longer active", "user_id", userID, "entitlement", s.entitlementKey)
}

func (s *EntitlementService) archiveReceipt(ctx context.Context, userID, productID string, p *entitlements.VerifiedPurchase, now time.Time) {
	if len(p.RawResponse) == 0 {
		return
	}
	key, err := s.archive.Store(ctx, receipts.Receipt{UserID: userID, ProductID: productID, Body: p.RawResponse, At: now})
	if err != nil {
		s.logger.Warn(ctx, "receipt archive failed", "user_id", userID, "error", err)
		return
	}
	if key != "" {
		s.logger.Debug(ctx, "receipt archived", "key", key)
	}
}
