package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solocoffee/api/internal/config"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/enum"
	"github.com/solocoffee/api/internal/handler"
	mw "github.com/solocoffee/api/internal/middleware"
	"github.com/solocoffee/api/internal/service"
	"github.com/solocoffee/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Reads are open to any authenticated user; catalog, account, and store
// management require the ADMIN role.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/stores/{sid}/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services backed by transactional stores
	orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	})
	inventoryService := service.NewInventoryService(pool, func(db database.DBTX) service.InventoryStore {
		return database.New(db)
	})

	productHandler := handler.NewProductHandler(queries)
	bomHandler := handler.NewBomHandler(queries)
	inventoryHandler := handler.NewInventoryHandler(queries, inventoryService)
	materialHandler := handler.NewMaterialHandler(queries)
	storeHandler := handler.NewStoreHandler(queries)
	customerHandler := handler.NewCustomerHandler(queries)
	userHandler := handler.NewUserHandler(queries)
	orderHandler := handler.NewOrderHandler(orderService, queries, hub)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Admin-only management routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			r.Route("/users", userHandler.RegisterRoutes)

			r.Post("/stores", storeHandler.Create)
			r.Put("/stores/{sid}", storeHandler.Update)

			r.Post("/products", productHandler.Create)
			r.Put("/products/{id}", productHandler.Update)
			r.Delete("/products/{id}", productHandler.Delete)
			r.Post("/products/{id}/bom", bomHandler.Create)
			r.Delete("/products/{id}/bom/{bomID}", bomHandler.Delete)

			r.Post("/materials", materialHandler.CreateCatalog)
		})

		// Stores
		r.Get("/stores", storeHandler.List)
		r.Get("/stores/{sid}", storeHandler.Get)

		// Products and their bill of materials
		r.Get("/products", productHandler.List)
		r.Get("/products/{id}", productHandler.Get)
		r.Get("/products/{id}/bom", bomHandler.List)

		// Raw-material catalog
		r.Get("/materials", materialHandler.ListCatalog)
		r.Get("/materials/{id}", materialHandler.GetCatalog)

		// Finished-goods stock
		r.Route("/inventory", inventoryHandler.RegisterRoutes)

		// Customers
		r.Route("/customers", customerHandler.RegisterRoutes)

		// Store-scoped routes
		r.Route("/stores/{sid}/orders", orderHandler.RegisterRoutes)
		r.Route("/stores/{sid}/materials", materialHandler.RegisterInventoryRoutes)
		r.Post("/stores/{sid}/reorder", inventoryHandler.Reorder)
	})

	return r
}
