package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mvieira/go-cart-api/internal/config"
	"github.com/mvieira/go-cart-api/internal/database"
	"github.com/mvieira/go-cart-api/internal/logger"
	"github.com/mvieira/go-cart-api/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cartCookieName = "cart_id"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalw("connect to database", "error", err)
	}
	defer db.Close()

	log.Infow("connected to database")

	mux := http.NewServeMux()

	mux.HandleFunc("/cart", handleCart(db))
	mux.HandleFunc("/cart/", handleCartItems(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductByID(db))
	mux.HandleFunc("/up", handleHealth(db))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Infow("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalw("server error", "error", err)
	}
}

func requestLogger(log *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		log.Infow("request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

// decodeCartItemRequest distinguishes a malformed body from a non-numeric
// quantity so the two get different client-facing messages.
func decodeCartItemRequest(w http.ResponseWriter, r *http.Request) (cartItemRequest, bool) {
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "quantity" {
			respondError(w, http.StatusUnprocessableEntity, "Quantity must be a number")
			return req, false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.Quantity == nil {
		respondError(w, http.StatusUnprocessableEntity, "Quantity must be a number")
		return req, false
	}
	return req, true
}

func handleCart(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodGet:
			cartID, ok := cartIDFromCookie(r)
			if !ok {
				respondError(w, http.StatusNotFound, "Cart not found")
				return
			}

			snapshot, err := store.GetCartSnapshot(ctx, db, cartID)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, snapshot)

		case http.MethodPost:
			req, ok := decodeCartItemRequest(w, r)
			if !ok {
				return
			}

			cartID, ok := cartIDFromCookie(r)
			if ok {
				// A second create call reuses the session's cart.
				if _, err := store.GetCart(ctx, db, cartID); err != nil {
					ok = false
				}
			}
			if !ok {
				cart, err := store.CreateCart(ctx, db)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				cartID = cart.ID
			}

			setCartCookie(w, cartID)

			snapshot, err := store.AddProduct(ctx, db, cartID, req.ProductID, *req.Quantity)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, snapshot)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCartItems(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cartID, ok := cartIDFromCookie(r)
		if !ok {
			respondError(w, http.StatusNotFound, "Cart not found")
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cart/add_item":
			req, ok := decodeCartItemRequest(w, r)
			if !ok {
				return
			}

			snapshot, err := store.AddProduct(ctx, db, cartID, req.ProductID, *req.Quantity)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, snapshot)

		case r.Method == http.MethodDelete:
			idStr := r.URL.Path[len("/cart/"):]
			if idStr == "" {
				respondError(w, http.StatusBadRequest, "Missing product_id")
				return
			}

			productID, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid product ID")
				return
			}

			snapshot, err := store.RemoveProduct(ctx, db, cartID, productID)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, snapshot)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name  string  `json:"name"`
				Price float64 `json:"price"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price := decimal.NewFromFloat(req.Price)
			product, err := store.CreateProduct(ctx, db, req.Name, price)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if page < 1 {
				page = 1
			}
			pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
			if pageSize < 1 || pageSize > 100 {
				pageSize = 20
			}

			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		idStr := r.URL.Path[len("/products/"):]
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, product)

		case http.MethodPut:
			var req struct {
				Name    string  `json:"name"`
				Price   float64 `json:"price"`
				Version int     `json:"version"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price := decimal.NewFromFloat(req.Price)
			product, err := store.UpdateProduct(ctx, db, id, req.Name, price, req.Version)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, product)

		case http.MethodDelete:
			if err := store.DeleteProduct(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}

			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleHealth(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func cartIDFromCookie(r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(cartCookieName)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(cookie.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func setCartCookie(w http.ResponseWriter, cartID int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     cartCookieName,
		Value:    strconv.FormatInt(cartID, 10),
		Path:     "/",
		HttpOnly: true,
	})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrInvalidQuantity):
		respondError(w, http.StatusUnprocessableEntity, "Quantity must be greater than 0")
	case errors.Is(err, database.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, database.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "Product not found in cart")
	case errors.Is(err, database.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "Cart not found")
	case errors.Is(err, database.ErrOptimisticLockFailed), errors.Is(err, database.ErrLockTimeout):
		respondError(w, http.StatusConflict, "Concurrent update, retry the request")
	default:
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
