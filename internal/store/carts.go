package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mvieira/go-cart-api/internal/database"
	"github.com/mvieira/go-cart-api/internal/models"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx so snapshot reads can run
// standalone or inside a mutation's transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func CreateCart(ctx context.Context, db *sql.DB) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `
		INSERT INTO carts (total_price, last_interaction_at, abandoned, created_at, updated_at)
		VALUES (0, NOW(), FALSE, NOW(), NOW())
		RETURNING id, total_price, last_interaction_at, abandoned, created_at, updated_at`

	err := db.QueryRowContext(ctx, query).Scan(
		&cart.ID,
		&cart.TotalPrice,
		&cart.LastInteractionAt,
		&cart.Abandoned,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return cart, nil
}

func GetCart(ctx context.Context, db *sql.DB, id int64) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `
		SELECT id, total_price, last_interaction_at, abandoned, created_at, updated_at
		FROM carts
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&cart.ID,
		&cart.TotalPrice,
		&cart.LastInteractionAt,
		&cart.Abandoned,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	itemsQuery := `
		SELECT id, cart_id, product_id, quantity, total_price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.TotalPrice,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	cart.Items = items

	return cart, nil
}

// GetCartSnapshot returns the client-facing view of a cart without mutating
// it. The abandoned flag and interaction clock are untouched.
func GetCartSnapshot(ctx context.Context, db *sql.DB, id int64) (*models.CartSnapshot, error) {
	return snapshotCart(ctx, db, id)
}

// AddProduct adds quantity units of a product to a cart. The line upsert,
// cart total recompute, and interaction-clock touch commit as one unit: a
// failure at any step leaves the cart exactly as it was. Concurrent calls
// against the same cart serialize on the cart row lock.
func AddProduct(ctx context.Context, db *sql.DB, cartID, productID int64, quantity int) (*models.CartSnapshot, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	var snapshot *models.CartSnapshot

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		var price decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT price FROM products WHERE id = $1`,
			productID).Scan(&price)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("get product price: %w", err)
		}

		lineTotal := price.Mul(decimal.NewFromInt(int64(quantity)))

		_, err = tx.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, total_price, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NOW(), NOW())
			 ON CONFLICT (cart_id, product_id) DO UPDATE
			 SET quantity = cart_items.quantity + EXCLUDED.quantity,
			     total_price = $5::numeric * (cart_items.quantity + EXCLUDED.quantity),
			     updated_at = NOW()`,
			cartID, productID, quantity, lineTotal, price)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}

		if err := recomputeCartTotal(ctx, tx, cartID); err != nil {
			return err
		}

		snap, err := snapshotCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		snapshot = snap

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// RemoveProduct removes one unit of a product from a cart. The line is
// deleted outright when its quantity reaches zero.
func RemoveProduct(ctx context.Context, db *sql.DB, cartID, productID int64) (*models.CartSnapshot, error) {
	var snapshot *models.CartSnapshot

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		var itemID int64
		var itemQuantity int
		var price decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT ci.id, ci.quantity, p.price
			 FROM cart_items ci
			 JOIN products p ON p.id = ci.product_id
			 WHERE ci.cart_id = $1 AND ci.product_id = $2`,
			cartID, productID).Scan(&itemID, &itemQuantity, &price)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrItemNotFound
			}
			return fmt.Errorf("get cart item: %w", err)
		}

		if itemQuantity <= 1 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE id = $1`, itemID)
			if err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
		} else {
			newQuantity := itemQuantity - 1
			newTotal := price.Mul(decimal.NewFromInt(int64(newQuantity)))
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items
				 SET quantity = $1, total_price = $2, updated_at = NOW()
				 WHERE id = $3`,
				newQuantity, newTotal, itemID)
			if err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		}

		if err := recomputeCartTotal(ctx, tx, cartID); err != nil {
			return err
		}

		snap, err := snapshotCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		snapshot = snap

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// lockCart takes the row lock that serializes mutations per cart.
func lockCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE id = $1 FOR UPDATE`,
		cartID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrCartNotFound
		}
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

// recomputeCartTotal re-derives total_price from the surviving lines and
// refreshes last_interaction_at. The abandoned flag is left alone: only the
// sweeper toggles it.
func recomputeCartTotal(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts
		 SET total_price = COALESCE((SELECT SUM(total_price) FROM cart_items WHERE cart_id = $1), 0),
		     last_interaction_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1`,
		cartID)
	if err != nil {
		return fmt.Errorf("recompute cart total: %w", err)
	}
	return nil
}

func snapshotCart(ctx context.Context, q querier, cartID int64) (*models.CartSnapshot, error) {
	snapshot := &models.CartSnapshot{}

	err := q.QueryRowContext(ctx,
		`SELECT id, total_price FROM carts WHERE id = $1`,
		cartID).Scan(&snapshot.ID, &snapshot.TotalPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT ci.product_id, p.name, ci.quantity, p.price, ci.total_price
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]models.CartLine, 0)
	for rows.Next() {
		var line models.CartLine
		err := rows.Scan(
			&line.ID,
			&line.Name,
			&line.Quantity,
			&line.UnitPrice,
			&line.TotalPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	snapshot.Products = lines

	return snapshot, nil
}
