package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/errors"
)

func TestMemoryDirectoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserRepository(&entity.User{ID: "b1", Username: "budi"})

	u, err := users.GetByID(ctx, "b1")
	require.NoError(t, err)
	u.Username = "changed"

	again, err := users.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "budi", again.Username)

	_, err = users.GetByID(ctx, "nobody")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"users": [{"id": "b1", "email": "b1@example.com", "username": "budi"}, {"id": "s1", "username": "sari"}],
		"products": [{"id": "p1", "seller_id": "s1", "title": "Copper wire 20kg", "price": 1250000}]
	}`), 0o600))

	users := NewMemoryUserRepository()
	products := NewMemoryProductRepository()
	require.NoError(t, LoadSeed(path, users, products))

	p, err := products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.SellerID)

	u, err := users.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1@example.com", u.Email)

	assert.Error(t, LoadSeed(filepath.Join(t.TempDir(), "missing.json"), users, products))
}
