package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tenant"
)

// fakeUserRepo is an in-memory UserRepository keyed by user ID.
type fakeUserRepo struct {
	users map[id.ID]User
}

var _ UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[id.ID]User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *User) error {
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, userID id.ID) (*User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	out := user
	return &out, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			out := user
			return &out, nil
		}
	}
	return nil, apperror.NewNotFound("user", email)
}

func (r *fakeUserRepo) Update(_ context.Context, user *User) error {
	if _, ok := r.users[user.ID]; !ok {
		return apperror.NewNotFound("user", user.ID.String())
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Deactivate(_ context.Context, userID id.ID) error {
	user, ok := r.users[userID]
	if !ok {
		return apperror.NewNotFound("user", userID.String())
	}
	user.IsActive = false
	r.users[userID] = user
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, filter UserFilter) ([]User, int, error) {
	var out []User
	for _, user := range r.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, user)
	}
	return out, len(out), nil
}

func (r *fakeUserRepo) Exists(_ context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(context.Background(), email)
	return err == nil, nil
}

// fakeTokenRepo stores refresh tokens keyed by hash.
type fakeTokenRepo struct {
	tokens map[string]RefreshToken
}

var _ TokenRepository = (*fakeTokenRepo)(nil)

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]RefreshToken)}
}

func (r *fakeTokenRepo) SaveRefreshToken(_ context.Context, token *RefreshToken) error {
	r.tokens[token.TokenHash] = *token
	return nil
}

func (r *fakeTokenRepo) GetRefreshToken(_ context.Context, tokenHash string) (*RefreshToken, error) {
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, apperror.NewNotFound("refresh token", tokenHash)
	}
	out := token
	return &out, nil
}

func (r *fakeTokenRepo) RevokeRefreshToken(_ context.Context, tokenID id.ID, reason string) error {
	for hash, token := range r.tokens {
		if token.ID == tokenID {
			now := time.Now()
			token.RevokedAt = &now
			token.RevokedReason = reason
			r.tokens[hash] = token
		}
	}
	return nil
}

func (r *fakeTokenRepo) RevokeAllUserTokens(_ context.Context, userID id.ID, reason string) error {
	for hash, token := range r.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			now := time.Now()
			token.RevokedAt = &now
			token.RevokedReason = reason
			r.tokens[hash] = token
		}
	}
	return nil
}

func (r *fakeTokenRepo) CleanupExpiredTokens(_ context.Context) (int, error) {
	var removed int
	for hash, token := range r.tokens {
		if time.Now().After(token.ExpiresAt) {
			delete(r.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeTokenRepo) validCount(userID id.ID) int {
	var n int
	for _, token := range r.tokens {
		if token.UserID == userID && token.IsValid() {
			n++
		}
	}
	return n
}

// passTxManager runs the function without transactional semantics; the
// auth flows under test never roll back repository writes.
type passTxManager struct{}

func (passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- fixtures ---

type testEnv struct {
	users  *fakeUserRepo
	tokens *fakeTokenRepo
	svc    *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	jwtService := NewJWTService(DefaultJWTConfig("test-secret"))
	cfg := DefaultServiceConfig()
	cfg.MaxLoginAttempts = 3
	return &testEnv{
		users:  users,
		tokens: tokens,
		svc:    NewService(users, tokens, passTxManager{}, jwtService, cfg),
	}
}

func tenantCtx() context.Context {
	return tenant.WithTenant(context.Background(), &tenant.Tenant{
		ID:   "tnt-1",
		Slug: "corner-shop",
	})
}

func (e *testEnv) register(t *testing.T, email, password, role string) *User {
	t.Helper()
	user, err := e.svc.Register(tenantCtx(), RegisterRequest{
		Email:    email,
		Password: password,
		Name:     "Test Staff",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

// --- tests ---

func TestRegisterHashesPassword(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "till@example.com", "hunter2hunter2", "")

	if user.Role != appctx.RoleCashier {
		t.Errorf("role = %q, want cashier default", user.Role)
	}
	if !user.IsActive {
		t.Error("new user not active")
	}
	if user.PasswordHash == "hunter2hunter2" {
		t.Error("password stored in clear")
	}
	if _, err := env.users.GetByEmail(context.Background(), "till@example.com"); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken@example.com", "hunter2hunter2", "")

	tests := []struct {
		name string
		req  RegisterRequest
		code string
	}{
		{"missing email", RegisterRequest{Password: "hunter2hunter2"}, apperror.CodeValidation},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "short"}, apperror.CodeValidation},
		{"invalid role", RegisterRequest{Email: "a@example.com", Password: "hunter2hunter2", Role: "owner"}, apperror.CodeValidation},
		{"duplicate email", RegisterRequest{Email: "taken@example.com", Password: "hunter2hunter2"}, apperror.CodeConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Register(tenantCtx(), tc.req)
			appErr, ok := apperror.AsAppError(err)
			if !ok || appErr.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestRegisterRequiresTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Email:    "till@example.com",
		Password: "hunter2hunter2",
	})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Fatalf("expected validation error without tenant, got %v", err)
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "till@example.com", "hunter2hunter2", appctx.RoleManager)

	tokens, user, err := env.svc.Login(tenantCtx(), Credentials{
		Email:    "till@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if user.ID != registered.ID {
		t.Errorf("logged in as %s, want %s", user.ID, registered.ID)
	}
	if user.LastLoginAt == nil {
		t.Error("last login not recorded")
	}
	if tokens.TokenType != "Bearer" {
		t.Errorf("token type = %q", tokens.TokenType)
	}
	if tokens.RefreshToken == "" {
		t.Error("no refresh token issued")
	}

	// The access token carries the tenant and role for the middleware.
	claims, err := NewJWTService(DefaultJWTConfig("test-secret")).ValidateToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TenantID != "tnt-1" {
		t.Errorf("tenant = %q, want tnt-1", claims.TenantID)
	}
	if claims.Role != appctx.RoleManager {
		t.Errorf("role = %q, want manager", claims.Role)
	}
	if claims.UserID != registered.ID.String() {
		t.Errorf("user = %q, want %s", claims.UserID, registered.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "till@example.com", "hunter2hunter2", "")

	_, _, err := env.svc.Login(tenantCtx(), Credentials{
		Email:    "till@example.com",
		Password: "wrong",
	})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// Unknown emails fail the same way; no probe for registered accounts.
	_, _, err = env.svc.Login(tenantCtx(), Credentials{Email: "nobody@example.com", Password: "x"})
	appErr, ok = apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeUnauthorized {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", "")

	for i := 0; i < 3; i++ {
		_, _, err := env.svc.Login(tenantCtx(), Credentials{
			Email:    "till@example.com",
			Password: "wrong",
		})
		if err == nil {
			t.Fatal("login succeeded with wrong password")
		}
	}

	// Even the right password is rejected while locked.
	_, _, err := env.svc.Login(tenantCtx(), Credentials{
		Email:    "till@example.com",
		Password: "hunter2hunter2",
	})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeForbidden {
		t.Fatalf("expected forbidden while locked, got %v", err)
	}

	stored, _ := env.users.GetByID(context.Background(), user.ID)
	if !stored.IsLocked() {
		t.Error("account not locked after repeated failures")
	}
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", "")

	for i := 0; i < 2; i++ {
		_, _, _ = env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "wrong"})
	}
	if _, _, err := env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	stored, _ := env.users.GetByID(context.Background(), user.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Errorf("failed attempts = %d after successful login", stored.FailedLoginAttempts)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", "")

	tokens, _, err := env.svc.Login(tenantCtx(), Credentials{
		Email:    "till@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := env.svc.RefreshToken(tenantCtx(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Error("refresh token not rotated")
	}

	// The old token is burned; replaying it must fail.
	if _, err := env.svc.RefreshToken(tenantCtx(), tokens.RefreshToken); err == nil {
		t.Fatal("replayed refresh token accepted")
	}
	if n := env.tokens.validCount(user.ID); n != 1 {
		t.Errorf("valid tokens = %d, want 1", n)
	}
}

func TestRefreshTokenGarbageRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RefreshToken(tenantCtx(), "not-a-token")
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogoutRevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", "")

	// Two terminals, two sessions.
	first, _, _ := env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"})
	second, _, _ := env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"})

	if err := env.svc.Logout(tenantCtx(), user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if n := env.tokens.validCount(user.ID); n != 0 {
		t.Errorf("valid tokens after logout = %d", n)
	}
	if _, err := env.svc.RefreshToken(tenantCtx(), first.RefreshToken); err == nil {
		t.Error("first session refreshed after logout")
	}
	if _, err := env.svc.RefreshToken(tenantCtx(), second.RefreshToken); err == nil {
		t.Error("second session refreshed after logout")
	}
}

func TestDeactivateBlocksLoginAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", "")
	tokens, _, _ := env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"})

	if err := env.svc.Deactivate(tenantCtx(), user.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	_, _, err := env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeForbidden {
		t.Fatalf("expected forbidden for disabled account, got %v", err)
	}
	if _, err := env.svc.RefreshToken(tenantCtx(), tokens.RefreshToken); err == nil {
		t.Error("disabled account refreshed a session")
	}
}

func TestChangeRoleRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "till@example.com", "hunter2hunter2", appctx.RoleManager)
	env.svc.Login(tenantCtx(), Credentials{Email: "till@example.com", Password: "hunter2hunter2"})

	if err := env.svc.ChangeRole(tenantCtx(), user.ID, appctx.RoleCashier); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}

	stored, _ := env.users.GetByID(context.Background(), user.ID)
	if stored.Role != appctx.RoleCashier {
		t.Errorf("role = %q, want cashier", stored.Role)
	}
	if n := env.tokens.validCount(user.ID); n != 0 {
		t.Errorf("valid tokens after role change = %d", n)
	}

	err := env.svc.ChangeRole(tenantCtx(), user.ID, "superuser")
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Fatalf("expected validation error for bad role, got %v", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	env := newTestEnv(t)
	userID := id.New()

	env.tokens.tokens["live"] = RefreshToken{ID: id.New(), UserID: userID, TokenHash: "live", ExpiresAt: time.Now().Add(time.Hour)}
	env.tokens.tokens["stale"] = RefreshToken{ID: id.New(), UserID: userID, TokenHash: "stale", ExpiresAt: time.Now().Add(-time.Hour)}

	removed, err := env.svc.CleanupExpiredTokens(tenantCtx())
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := env.tokens.tokens["live"]; !ok {
		t.Error("live token removed")
	}
}

func TestLockedAccountUnlocksAfterLockWindow(t *testing.T) {
	user := NewUser("till@example.com", "hash", "Till", appctx.RoleCashier)
	past := time.Now().Add(-time.Minute)
	user.LockedUntil = &past
	user.FailedLoginAttempts = 5

	if user.IsLocked() {
		t.Error("account still locked past LockedUntil")
	}
	if err := user.CanLogin(); err != nil {
		t.Errorf("CanLogin after lock expiry: %v", err)
	}
}
