package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentra/sentra/internal/auth"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
)

func newBlockEnv(t *testing.T) (*fakeStore, *BlockService, string) {
	t.Helper()

	secret := "ms_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b9c7a5f3d2e1b9c7a"
	hash, err := auth.HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	site := testSite()
	site.SecretHash = hash
	store := newFakeStore(site)

	return store, NewBlockService(store, metrics.NewNoop(), testLogger()), secret
}

func TestBlockService_CreateAndDelete(t *testing.T) {
	t.Parallel()

	store, svc, secret := newBlockEnv(t)

	block, err := svc.Create(context.Background(), CreateBlockInput{
		SiteKey: store.site.APIKey,
		Secret:  secret,
		Type:    model.BlockTypeIP,
		Value:   "203.0.113.77",
		Reason:  "scraping",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if block.IP != "203.0.113.77" || block.Type() != model.BlockTypeIP {
		t.Errorf("block = %+v", block)
	}

	if err := svc.Delete(context.Background(), store.site.APIKey, secret, block.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := svc.Delete(context.Background(), store.site.APIKey, secret, block.ID); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("second delete: expected ErrBlockNotFound, got %v", err)
	}
}

func TestBlockService_Create_WrongSecret(t *testing.T) {
	t.Parallel()

	store, svc, _ := newBlockEnv(t)

	_, err := svc.Create(context.Background(), CreateBlockInput{
		SiteKey: store.site.APIKey,
		Secret:  "ms_wrongwrongwrongwrongwrongwrongwrongwrongwrong12",
		Type:    model.BlockTypeIP,
		Value:   "203.0.113.77",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBlockService_Create_Validation(t *testing.T) {
	t.Parallel()

	store, svc, secret := newBlockEnv(t)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		input   CreateBlockInput
		wantErr error
	}{
		{
			name: "bad type",
			input: CreateBlockInput{
				SiteKey: store.site.APIKey, Secret: secret,
				Type: model.BlockType("asn"), Value: "x",
			},
			wantErr: ErrInvalidBlockType,
		},
		{
			name: "missing value",
			input: CreateBlockInput{
				SiteKey: store.site.APIKey, Secret: secret,
				Type: model.BlockTypeFingerprint,
			},
			wantErr: ErrMissingValue,
		},
		{
			name: "expiry in past",
			input: CreateBlockInput{
				SiteKey: store.site.APIKey, Secret: secret,
				Type: model.BlockTypeIP, Value: "203.0.113.1", ExpiresAt: &past,
			},
			wantErr: ErrExpiresInPast,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := svc.Create(context.Background(), tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBlockService_Delete_OtherTenant(t *testing.T) {
	t.Parallel()

	store, svc, secret := newBlockEnv(t)
	store.activeBlock = &model.ManualBlock{
		ID:      "block-other",
		SiteKey: "sk_test_someothersite00000000000000000",
		IP:      "203.0.113.88",
	}

	if err := svc.Delete(context.Background(), store.site.APIKey, secret, "block-other"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBlockService_List_TracksUsage(t *testing.T) {
	t.Parallel()

	store, svc, _ := newBlockEnv(t)
	store.activeBlock = &model.ManualBlock{
		ID:      "block-1",
		SiteKey: store.site.APIKey,
		IP:      "203.0.113.99",
	}

	blocks, err := svc.List(context.Background(), store.site.APIKey, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Errorf("block count = %d, want 1", len(blocks))
	}
	if store.usageIncrements != 1 {
		t.Errorf("usage increments = %d, want 1", store.usageIncrements)
	}

	if _, err := svc.List(context.Background(), store.site.APIKey, false); err != nil {
		t.Fatalf("List (untracked) failed: %v", err)
	}
	if store.usageIncrements != 1 {
		t.Error("untracked list must not count usage")
	}
}

func TestBlockService_List_InvalidSiteKey(t *testing.T) {
	t.Parallel()

	_, svc, _ := newBlockEnv(t)

	if _, err := svc.List(context.Background(), "sk_test_unknown", false); !errors.Is(err, ErrInvalidSiteKey) {
		t.Fatalf("expected ErrInvalidSiteKey, got %v", err)
	}
}
