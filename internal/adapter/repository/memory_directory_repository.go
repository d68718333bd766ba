package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/domain/repository"
	"scrapmart/pkg/errors"
)

// MemoryUserRepository serves users from memory. The marketplace owns the real
// user collection; this keeps the chat core runnable without it.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

var _ repository.UserRepository = (*MemoryUserRepository)(nil)

func NewMemoryUserRepository(users ...*entity.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

func (r *MemoryUserRepository) Put(user *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	copied := *user
	return &copied, nil
}

type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*entity.Product
}

var _ repository.ProductRepository = (*MemoryProductRepository)(nil)

func NewMemoryProductRepository(products ...*entity.Product) *MemoryProductRepository {
	r := &MemoryProductRepository{products: make(map[string]*entity.Product)}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

func (r *MemoryProductRepository) Put(product *entity.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *product
	r.products[product.ID] = &copied
}

func (r *MemoryProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[id]
	if !ok {
		return nil, errors.NotFound("Product", nil)
	}
	copied := *product
	return &copied, nil
}

// Seed is the on-disk layout of SEED_FILE.
type Seed struct {
	Users    []*entity.User    `json:"users"`
	Products []*entity.Product `json:"products"`
}

// LoadSeed reads a JSON seed file into the memory repositories.
func LoadSeed(path string, users *MemoryUserRepository, products *MemoryProductRepository) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, u := range seed.Users {
		users.Put(u)
	}
	for _, p := range seed.Products {
		products.Put(p)
	}
	return nil
}
