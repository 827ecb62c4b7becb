package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-queue/internal/auth"
)

const minPasswordLength = 6

type Service struct {
	repo       Repository
	issuer     *auth.Issuer
	policy     auth.Policy
	bcryptCost int
	log        zerolog.Logger
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost, used by tests and the seeder.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithPolicy replaces the permission table consulted for non-patient sign-ups.
func WithPolicy(p auth.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(repo Repository, issuer *auth.Issuer, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		issuer:     issuer,
		policy:     auth.DefaultPolicy(),
		bcryptCost: bcrypt.DefaultCost,
		log:        log.With().Str("component", "account").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	Profile  Profile
}

// Session is a signed credential plus the account it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   Account
}

// Register creates an account. Role defaults to patient. Anyone may sign up
// as a patient; every other role needs a caller the policy lets register
// staff accounts, so caller may be nil only for patients.
func (s *Service) Register(ctx context.Context, in RegisterInput, caller *auth.Claims) (*Account, error) {
	role := auth.RolePatient
	if strings.TrimSpace(in.Role) != "" {
		r, err := auth.ParseRole(in.Role)
		if err != nil {
			return nil, &ValidationError{Field: "role", Message: "Role must be one of patient, doctor, staff, admin."}
		}
		role = r
	}

	if role != auth.RolePatient {
		if caller == nil {
			return nil, fmt.Errorf("register %s account: %w", role, auth.ErrForbidden)
		}
		if err := s.policy.Authorize(auth.OpRegisterStaffAccount, caller); err != nil {
			return nil, fmt.Errorf("register %s account: %w", role, err)
		}
	}
	return s.create(ctx, in, role)
}

// AddDoctor creates a doctor account on behalf of an admin.
func (s *Service) AddDoctor(ctx context.Context, in RegisterInput) (*Account, error) {
	return s.create(ctx, in, auth.RoleDoctor)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (*Account, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	if email == "" || in.Password == "" || name == "" {
		return nil, &ValidationError{Field: "email", Message: "Email, password, and name are required."}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &ValidationError{Field: "email", Message: "Email address is not valid."}
	}
	if len(in.Password) < minPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters.", minPasswordLength)}
	}

	profile := in.Profile
	profile.Specialization = strings.TrimSpace(profile.Specialization)
	if role == auth.RoleDoctor && profile.Specialization == "" {
		return nil, &ValidationError{Field: "specialization", Message: "Specialization is required for doctors."}
	}
	if profile.Age != nil && *profile.Age < 0 {
		return nil, &ValidationError{Field: "age", Message: "Age cannot be negative."}
	}

	if _, err := s.repo.GetAccountByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc, err := s.repo.CreateAccount(ctx, NewAccount{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Name:         name,
		Profile:      profile,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info().
		Str("account_id", acc.ID.String()).
		Str("role", string(acc.Role)).
		Msg("account registered")

	return acc, nil
}

// Login verifies the password and signs a credential.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, &ValidationError{Field: "email", Message: "Email and password are required."}
	}

	acc, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(acc.Identity())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &Session{Token: token, ExpiresAt: expiresAt, Account: *acc}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
