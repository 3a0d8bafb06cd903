package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

type CreateInventoryInput struct {
	Title          string
	Description    string
	RemainingCount int
	ExpirationDate time.Time
}

// InventoryService is the inventory ledger. It owns the remaining counter.
type InventoryService struct {
	repo port.InventoryRepository
	log  *zap.Logger
}

func NewInventoryService(repo port.InventoryRepository, log *zap.Logger) *InventoryService {
	return &InventoryService{repo: repo, log: log}
}

func (s *InventoryService) GetByID(ctx context.Context, id string) (*domain.Inventory, error) {
	item, err := s.repo.GetInventory(ctx, id)
	if err != nil {
		return nil, storeErr("Failed to load inventory.", err)
	}
	if item == nil {
		return nil, domain.NotFound("Inventory not found.")
	}
	return item, nil
}

func (s *InventoryService) List(ctx context.Context) ([]domain.Inventory, error) {
	items, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, storeErr("Failed to list inventory.", err)
	}
	return items, nil
}

func (s *InventoryService) Create(ctx context.Context, in CreateInventoryInput) (*domain.Inventory, error) {
	item := domain.Inventory{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		RemainingCount: in.RemainingCount,
		ExpirationDate: in.ExpirationDate.UTC(),
	}
	if err := validateInventory(item); err != nil {
		return nil, err
	}

	if err := s.repo.InsertInventory(ctx, item); err != nil {
		return nil, storeErr("Failed to create inventory.", err)
	}

	s.log.Info("inventory created", zap.String("inventory_id", item.ID), zap.Int("remaining", item.RemainingCount))
	return &item, nil
}

func (s *InventoryService) BulkCreate(ctx context.Context, items []domain.Inventory) ([]domain.Inventory, error) {
	if len(items) == 0 {
		return nil, domain.BadRequest("No records found in the CSV file.")
	}

	batch := make([]domain.Inventory, len(items))
	for i, item := range items {
		if err := validateInventory(item); err != nil {
			return nil, err
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		batch[i] = item
	}

	if err := s.repo.BulkInsertInventory(ctx, batch); err != nil {
		return nil, storeErr("Failed to import inventory.", err)
	}

	s.log.Info("inventory imported", zap.Int("count", len(batch)))
	return batch, nil
}

// UpdateRemainingCount re-reads the item and overwrites its remaining count
// with count. The write only lands if the counter still holds the value read.
func (s *InventoryService) UpdateRemainingCount(ctx context.Context, id string, count int) (*domain.Inventory, error) {
	if count < 0 {
		return nil, domain.ValidationError("Inventory remaining count cannot be negative.")
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetInventoryRemainingCount(ctx, id, item.RemainingCount, count); err != nil {
		return nil, counterWriteErr("inventory", err)
	}

	item.RemainingCount = count
	return item, nil
}

func validateInventory(item domain.Inventory) error {
	if strings.TrimSpace(item.Title) == "" {
		return domain.BadRequest("Inventory title is required.")
	}
	if item.RemainingCount < 0 {
		return domain.BadRequest("Inventory remaining count cannot be negative.")
	}
	return nil
}
