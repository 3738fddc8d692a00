package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/solocoffee/api/internal/auth"
	"github.com/solocoffee/api/internal/database"
	"github.com/solocoffee/api/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-secret"

type mockAuthStore struct {
	users map[uuid.UUID]database.User
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{users: make(map[uuid.UUID]database.User)}
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetUser(_ context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) addUser(t *testing.T, email, password, role string) database.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now()
	u := database.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       "Test User",
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.users[u.ID] = u
	return u
}

func setupAuthRouter(store *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testJWTSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestLogin_Valid(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(t, "barista@test.com", "password123", "STAFF")

	router := setupAuthRouter(store)
	rr := doRequest(t, router, "POST", "/auth/login", map[string]interface{}{
		"email":    "barista@test.com",
		"password": "password123",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	token, _ := resp["access_token"].(string)
	if token == "" {
		t.Fatal("expected access_token in response")
	}
	if resp["refresh_token"] == "" {
		t.Error("expected refresh_token in response")
	}

	claims, err := auth.ValidateToken(testJWTSecret, token)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.Role != "STAFF" {
		t.Errorf("role claim: got %s, want STAFF", claims.Role)
	}

	user := resp["user"].(map[string]interface{})
	if user["email"] != "barista@test.com" {
		t.Errorf("user email: got %v, want 'barista@test.com'", user["email"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(t, "barista@test.com", "password123", "STAFF")

	router := setupAuthRouter(store)
	rr := doRequest(t, router, "POST", "/auth/login", map[string]interface{}{
		"email":    "barista@test.com",
		"password": "wrong",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeObject(t, rr); resp["error"] != "invalid credentials" {
		t.Errorf("error: got %v, want 'invalid credentials'", resp["error"])
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	router := setupAuthRouter(newMockAuthStore())

	rr := doRequest(t, router, "POST", "/auth/login", map[string]interface{}{
		"email":    "nobody@test.com",
		"password": "password123",
	})

	// Unknown email responds identically to a wrong password
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeObject(t, rr); resp["error"] != "invalid credentials" {
		t.Errorf("error: got %v, want 'invalid credentials'", resp["error"])
	}
}

func TestLogin_MissingFields(t *testing.T) {
	router := setupAuthRouter(newMockAuthStore())

	rr := doRequest(t, router, "POST", "/auth/login", map[string]interface{}{
		"email": "barista@test.com",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRefresh_Valid(t *testing.T) {
	store := newMockAuthStore()
	user := store.addUser(t, "barista@test.com", "password123", "ADMIN")

	refreshToken, err := auth.GenerateRefreshToken(testJWTSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	router := setupAuthRouter(store)
	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]interface{}{
		"refresh_token": refreshToken,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeObject(t, rr)
	if resp["access_token"] == "" {
		t.Error("expected fresh access_token")
	}
	userResp := resp["user"].(map[string]interface{})
	if userResp["id"] != user.ID.String() {
		t.Errorf("user id: got %v, want %s", userResp["id"], user.ID)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	router := setupAuthRouter(newMockAuthStore())

	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]interface{}{
		"refresh_token": "garbage.token.value",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRefresh_UnknownUser(t *testing.T) {
	refreshToken, err := auth.GenerateRefreshToken(testJWTSecret, uuid.New())
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	router := setupAuthRouter(newMockAuthStore())
	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]interface{}{
		"refresh_token": refreshToken,
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
