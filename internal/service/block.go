package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sentra/sentra/internal/auth"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/repository"
)

// Block service errors.
var (
	ErrUnauthorized     = errors.New("invalid management secret")
	ErrForbidden        = errors.New("block belongs to another site")
	ErrBlockNotFound    = errors.New("block not found")
	ErrInvalidBlockType = errors.New("block type must be ip or fingerprint")
	ErrMissingValue     = errors.New("block value is required")
	ErrExpiresInPast    = errors.New("expires_at must be in the future")
)

// BlockStore is the persistence surface for manual block management.
type BlockStore interface {
	GetSiteByKey(ctx context.Context, apiKey string) (*model.Site, error)
	ListActiveBlocks(ctx context.Context, siteKey string) ([]*model.ManualBlock, error)
	CreateBlock(ctx context.Context, block *model.ManualBlock) error
	GetBlock(ctx context.Context, id string) (*model.ManualBlock, error)
	DeleteBlock(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, userID string) error
}

// BlockService manages a tenant's manual deny rules. Mutations are gated
// by the site's management secret; the public list feeds client-side
// enforcement.
type BlockService struct {
	store   BlockStore
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewBlockService creates a BlockService.
func NewBlockService(store BlockStore, recorder metrics.Recorder, logger *slog.Logger) *BlockService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &BlockService{
		store:   store,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// List returns the tenant's active blocks, newest first. When trackUsage
// is set (third-party integrations polling the list), one quota unit is
// counted against the owning account; that write is best-effort.
func (s *BlockService) List(ctx context.Context, siteKey string, trackUsage bool) ([]*model.ManualBlock, error) {
	site, err := s.store.GetSiteByKey(ctx, siteKey)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			return nil, ErrInvalidSiteKey
		}
		return nil, fmt.Errorf("site lookup: %w", err)
	}

	blocks, err := s.store.ListActiveBlocks(ctx, site.APIKey)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	if trackUsage {
		if err := s.store.IncrementUsage(ctx, site.UserID); err != nil {
			s.logger.Error("usage increment failed",
				slog.String("user_id", site.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return blocks, nil
}

// CreateBlockInput defines input for creating a manual block.
type CreateBlockInput struct {
	SiteKey   string
	Secret    string
	Type      model.BlockType
	Value     string
	Reason    string
	ExpiresAt *time.Time
}

// Create inserts a manual block after verifying the caller holds the
// site's management secret.
func (s *BlockService) Create(ctx context.Context, in CreateBlockInput) (*model.ManualBlock, error) {
	site, err := s.authorize(ctx, in.SiteKey, in.Secret)
	if err != nil {
		return nil, err
	}

	if !in.Type.IsValid() {
		return nil, ErrInvalidBlockType
	}
	if in.Value == "" {
		return nil, ErrMissingValue
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, ErrExpiresInPast
	}

	block := &model.ManualBlock{
		ID:        ulid.Make().String(),
		SiteKey:   site.APIKey,
		Reason:    in.Reason,
		CreatedAt: s.now().UTC(),
		ExpiresAt: in.ExpiresAt,
	}
	if in.Type == model.BlockTypeFingerprint {
		block.FingerprintHash = in.Value
	} else {
		block.IP = in.Value
	}

	if err := s.store.CreateBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	s.logger.Info("manual block created",
		slog.String("site_key", site.APIKey),
		slog.String("block_id", block.ID),
		slog.String("block_type", string(block.Type())),
	)

	return block, nil
}

// Delete removes a block by ID after verifying the management secret and
// that the block belongs to the caller's site.
func (s *BlockService) Delete(ctx context.Context, siteKey, secret, blockID string) error {
	site, err := s.authorize(ctx, siteKey, secret)
	if err != nil {
		return err
	}

	block, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, repository.ErrBlockNotFound) {
			return ErrBlockNotFound
		}
		return fmt.Errorf("get block: %w", err)
	}

	if block.SiteKey != site.APIKey {
		return ErrForbidden
	}

	if err := s.store.DeleteBlock(ctx, blockID); err != nil {
		if errors.Is(err, repository.ErrBlockNotFound) {
			return ErrBlockNotFound
		}
		return fmt.Errorf("delete block: %w", err)
	}

	s.logger.Info("manual block deleted",
		slog.String("site_key", site.APIKey),
		slog.String("block_id", blockID),
	)

	return nil
}

func (s *BlockService) authorize(ctx context.Context, siteKey, secret string) (*model.Site, error) {
	site, err := s.store.GetSiteByKey(ctx, siteKey)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			return nil, ErrInvalidSiteKey
		}
		return nil, fmt.Errorf("site lookup: %w", err)
	}

	ok, err := auth.VerifySecret(secret, site.SecretHash)
	if err != nil || !ok {
		return nil, ErrUnauthorized
	}

	return site, nil
}
