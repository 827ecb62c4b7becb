package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic/clinictest"
)

var adminCaller = &auth.Claims{Role: auth.RoleAdmin}

func newService(t *testing.T) (*account.Service, *clinictest.MemStore, *auth.Issuer) {
	t.Helper()
	store := clinictest.NewMemStore()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	return account.NewService(store, issuer, zerolog.Nop(), account.WithBcryptCost(bcrypt.MinCost)), store, issuer
}

func TestRegister_DefaultsToPatientWithProfile(t *testing.T) {
	svc, store, _ := newService(t)
	age := 51

	acc, err := svc.Register(context.Background(), account.RegisterInput{
		Email:    "  Grace@Example.com ",
		Password: "hopper-1906",
		Name:     "Grace",
		Profile:  account.Profile{Age: &age},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, auth.RolePatient, acc.Role)
	assert.Equal(t, "grace@example.com", acc.Email)
	assert.NotEqual(t, "hopper-1906", acc.PasswordHash)

	p, err := store.GetPatientByAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", p.Name)
	require.NotNil(t, p.Age)
	assert.Equal(t, 51, *p.Age)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newService(t)

	tests := []struct {
		name  string
		in    account.RegisterInput
		field string
	}{
		{"missing name", account.RegisterInput{Email: "a@b.co", Password: "secret1"}, "email"},
		{"bad email", account.RegisterInput{Email: "nope", Password: "secret1", Name: "N"}, "email"},
		{"short password", account.RegisterInput{Email: "a@b.co", Password: "abc", Name: "N"}, "password"},
		{"unknown role", account.RegisterInput{Email: "a@b.co", Password: "secret1", Name: "N", Role: "root"}, "role"},
		{"doctor without specialization", account.RegisterInput{Email: "a@b.co", Password: "secret1", Name: "N", Role: "doctor"}, "specialization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in, adminCaller)
			var ve *account.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegister_NonPatientRolesNeedAdmin(t *testing.T) {
	svc, store, _ := newService(t)

	for _, role := range []string{"doctor", "staff", "admin"} {
		in := account.RegisterInput{
			Email:    role + "@example.com",
			Password: "secret1",
			Name:     "Mallory",
			Role:     role,
			Profile:  account.Profile{Specialization: "Surgery"},
		}

		_, err := svc.Register(context.Background(), in, nil)
		assert.ErrorIs(t, err, auth.ErrForbidden, "anonymous %s", role)

		_, err = svc.Register(context.Background(), in, &auth.Claims{Role: auth.RolePatient})
		assert.ErrorIs(t, err, auth.ErrForbidden, "patient creating %s", role)

		_, err = store.GetAccountByEmail(context.Background(), in.Email)
		assert.ErrorIs(t, err, account.ErrAccountNotFound)

		acc, err := svc.Register(context.Background(), in, adminCaller)
		require.NoError(t, err, role)
		assert.Equal(t, role, string(acc.Role))
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newService(t)
	in := account.RegisterInput{Email: "dup@example.com", Password: "secret1", Name: "Dup"}

	_, err := svc.Register(context.Background(), in, nil)
	require.NoError(t, err)

	in.Email = "DUP@example.com"
	_, err = svc.Register(context.Background(), in, nil)
	assert.ErrorIs(t, err, account.ErrEmailTaken)
}

func TestAddDoctor_CreatesDoctorProfile(t *testing.T) {
	svc, store, _ := newService(t)

	acc, err := svc.AddDoctor(context.Background(), account.RegisterInput{
		Email:    "who@example.com",
		Password: "tardis-1963",
		Name:     "Who",
		Role:     "patient",
		Profile:  account.Profile{Specialization: "Time medicine"},
	})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDoctor, acc.Role)

	d, err := store.GetDoctorByAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Time medicine", d.Specialization)
}

func TestLogin(t *testing.T) {
	svc, _, issuer := newService(t)
	acc, err := svc.Register(context.Background(), account.RegisterInput{
		Email: "staff@example.com", Password: "secret1", Name: "Front Desk", Role: "staff",
	}, adminCaller)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "staff@example.com", "wrong")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	session, err := svc.Login(context.Background(), "Staff@Example.com", "secret1")
	require.NoError(t, err)

	claims, err := issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, claims.Role)
	id, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
}
