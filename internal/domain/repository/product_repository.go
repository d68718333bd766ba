package repository

import (
	"context"

	"scrapmart/internal/domain/entity"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
}
