package ledger

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/clock"
	"github.com/smallbiznis/domainlink/internal/handoff/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenBytes = 32

type ledger struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewLedger(db *gorm.DB, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Ledger {
	return &ledger{
		db:    db,
		genID: genID,
		clock: clk,
		log:   log.Named("handoff.ledger"),
	}
}

func (l *ledger) Issue(ctx context.Context, subject string, tenantID snowflake.ID, intent domain.Intent) (string, error) {
	if !intent.Valid() {
		return "", domain.ErrHandoffFailed
	}

	raw, err := newTokenKey()
	if err != nil {
		return "", err
	}

	record := domain.HandoffToken{
		ID:        l.genID.Generate(),
		TokenHash: hashToken(raw),
		Subject:   subject,
		TenantID:  tenantID,
		Intent:    intent,
		IssuedAt:  l.clock.Now(),
	}
	if err := l.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", err
	}
	return raw, nil
}

func (l *ledger) Redeem(ctx context.Context, rawToken string, tenantID snowflake.ID) (*domain.HandoffToken, error) {
	hash := hashToken(rawToken)

	var token domain.HandoffToken
	err := l.db.WithContext(ctx).First(&token, "token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownKey
		}
		return nil, err
	}

	// The delete decides the winner: of N concurrent redeemers, exactly one
	// removes the row. Everyone else sees zero rows affected.
	res := l.db.WithContext(ctx).Delete(&domain.HandoffToken{}, "token_hash = ?", hash)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrUnknownKey
	}

	// Token is burned at this point; validation failures below fail closed.
	if token.TenantID != tenantID {
		l.log.Warn("handoff token tenant mismatch",
			zap.String("token_tenant", token.TenantID.String()),
			zap.String("request_tenant", tenantID.String()),
		)
		return nil, domain.ErrTenantMismatch
	}
	if l.clock.Now().Sub(token.IssuedAt) > domain.TokenTTL {
		return nil, domain.ErrExpiredKey
	}
	return &token, nil
}

func (l *ledger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := l.clock.Now().Add(-age)
	res := l.db.WithContext(ctx).Delete(&domain.HandoffToken{}, "issued_at < ?", cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func newTokenKey() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
