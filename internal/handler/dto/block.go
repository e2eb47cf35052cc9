package dto

import (
	"time"

	"github.com/sentra/sentra/internal/model"
)

// CreateBlockRequest represents the request body for creating a block.
type CreateBlockRequest struct {
	SiteKey   string     `json:"site_key" validate:"required"`
	Type      string     `json:"type" validate:"required,oneof=ip fingerprint"`
	Value     string     `json:"value" validate:"required"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// BlockResponse represents a manual block in API responses.
type BlockResponse struct {
	ID        string     `json:"id"`
	SiteKey   string     `json:"site_key"`
	Type      string     `json:"type"`
	Value     string     `json:"value"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// BlockListResponse wraps the tenant's block list.
type BlockListResponse struct {
	Data []BlockResponse `json:"data"`
}

// ToBlockResponse converts a ManualBlock model to its response DTO.
func ToBlockResponse(block *model.ManualBlock) BlockResponse {
	return BlockResponse{
		ID:        block.ID,
		SiteKey:   block.SiteKey,
		Type:      string(block.Type()),
		Value:     block.Value(),
		Reason:    block.Reason,
		CreatedAt: block.CreatedAt,
		ExpiresAt: block.ExpiresAt,
	}
}

// ToBlockListResponse converts a slice of blocks to the list DTO.
func ToBlockListResponse(blocks []*model.ManualBlock) BlockListResponse {
	data := make([]BlockResponse, 0, len(blocks))
	for _, block := range blocks {
		data = append(data, ToBlockResponse(block))
	}
	return BlockListResponse{Data: data}
}
