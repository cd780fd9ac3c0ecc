package store

import (
	"context"
	"testing"

	"github.com/mvieira/go-cart-api/internal/database"
	"github.com/shopspring/decimal"
)

func TestCreateAndGetProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := CreateProduct(ctx, db, "Test Product", decimal.NewFromFloat(49.90))
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if product.ID == 0 {
		t.Error("Product ID should not be 0")
	}

	fetched, err := GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if fetched.Name != "Test Product" {
		t.Errorf("Expected name 'Test Product', got %q", fetched.Name)
	}
	if !fetched.Price.Equal(decimal.NewFromFloat(49.90)) {
		t.Errorf("Expected price 49.90, got %s", fetched.Price)
	}
}

func TestGetProductNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, err := GetProduct(ctx, db, 999)
	if err != database.ErrProductNotFound {
		t.Errorf("Expected product not found, got: %v", err)
	}
}

func TestUpdateProductOptimisticLocking(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := CreateProduct(ctx, db, "Test Product", decimal.NewFromFloat(10.0))
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	updated, err := UpdateProduct(ctx, db, product.ID, "Test Product", decimal.NewFromFloat(12.0), product.Version)
	if err != nil {
		t.Fatalf("First update should succeed: %v", err)
	}
	if updated.Version != product.Version+1 {
		t.Errorf("Expected version %d, got %d", product.Version+1, updated.Version)
	}

	_, err = UpdateProduct(ctx, db, product.ID, "Test Product", decimal.NewFromFloat(14.0), product.Version)
	if err != database.ErrOptimisticLockFailed {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := CreateProduct(ctx, db, "Test Product", decimal.NewFromFloat(10.0))
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if err := DeleteProduct(ctx, db, product.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}

	if _, err := GetProduct(ctx, db, product.ID); err != database.ErrProductNotFound {
		t.Errorf("Expected product not found after delete, got: %v", err)
	}

	if err := DeleteProduct(ctx, db, product.ID); err != database.ErrProductNotFound {
		t.Errorf("Expected product not found on second delete, got: %v", err)
	}
}

func TestListProducts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := CreateProduct(ctx, db, "Test Product", decimal.NewFromInt(int64(i+1)))
		if err != nil {
			t.Fatalf("Create product %d: %v", i, err)
		}
	}

	page1, err := ListProducts(ctx, db, 1, 10)
	if err != nil {
		t.Fatalf("List products page 1: %v", err)
	}
	if page1.Total != 15 {
		t.Errorf("Expected total 15, got %d", page1.Total)
	}
	if page1.TotalPages != 2 {
		t.Errorf("Expected 2 pages, got %d", page1.TotalPages)
	}

	page2, err := ListProducts(ctx, db, 2, 10)
	if err != nil {
		t.Fatalf("List products page 2: %v", err)
	}
	if page2.Page != 2 {
		t.Errorf("Expected page 2, got %d", page2.Page)
	}
}
