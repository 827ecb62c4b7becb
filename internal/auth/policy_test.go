package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Authorize(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		op      Operation
		role    Role
		allowed bool
	}{
		{OpBookAppointment, RolePatient, true},
		{OpBookAppointment, RoleStaff, false},
		{OpCompleteAndAdvance, RoleDoctor, true},
		{OpCompleteAndAdvance, RolePatient, false},
		{OpScheduleWalkIn, RoleStaff, true},
		{OpScheduleWalkIn, RoleAdmin, false},
		{OpGetAdminQueueMonitor, RoleAdmin, true},
		{OpGetAdminQueueMonitor, RoleDoctor, false},
		{OpSubscribeNotifications, RolePatient, true},
		{OpSubscribeNotifications, RoleAdmin, true},
		{OpRegisterStaffAccount, RoleAdmin, true},
		{OpRegisterStaffAccount, RoleStaff, false},
		{OpRegisterStaffAccount, RolePatient, false},
		{Operation("dropTables"), RoleAdmin, false},
	}

	for _, tc := range cases {
		err := policy.Authorize(tc.op, &Claims{Role: tc.role})
		if tc.allowed {
			assert.NoError(t, err, "%s as %s", tc.op, tc.role)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s as %s", tc.op, tc.role)
		}
	}

	assert.ErrorIs(t, policy.Authorize(OpGetMyTurn, nil), ErrMissingToken)
}

func TestMiddleware_AuthenticateAndRequire(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	policy := DefaultPolicy()

	var seen *Claims
	handler := Authenticate(issuer)(Require(policy, OpGetMyTurn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/my-turn", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing_token")
	})

	t.Run("wrong role", func(t *testing.T) {
		token, _, err := issuer.Issue(Identity{AccountID: uuid.New(), Role: RoleDoctor})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/my-turn", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("patient via query token", func(t *testing.T) {
		accountID := uuid.New()
		token, _, err := issuer.Issue(Identity{AccountID: accountID, Role: RolePatient, Name: "Lee"})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/my-turn?token="+token, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, accountID.String(), seen.Subject)
	})
}

func TestOptionalAuthenticate(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	var (
		seen   *Claims
		called bool
	)
	handler := OptionalAuthenticate(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous passes without claims", func(t *testing.T) {
		called, seen = false, nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, called)
		assert.Nil(t, seen)
	})

	t.Run("valid token attaches claims", func(t *testing.T) {
		called, seen = false, nil
		token, _, err := issuer.Issue(Identity{AccountID: uuid.New(), Email: "a@clinic.test", Name: "A", Role: RoleAdmin})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, RoleAdmin, seen.Role)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		called, seen = false, nil
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})
}
