package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue/internal/auth"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.Name,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, name, created_at
		FROM accounts
		WHERE email = $1
	`, email)
	return scanAccount(row)
}

func (r *PgRepository) CreateAccount(ctx context.Context, in NewAccount) (*Account, error) {
	var created *Account

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO accounts (id, email, password_hash, role, name, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING id, email, password_hash, role, name, created_at
		`, uuid.New(), in.Email, in.PasswordHash, in.Role, in.Name)

		a, err := scanAccount(row)
		if err != nil {
			return err
		}

		switch in.Role {
		case auth.RolePatient:
			_, err = tx.Exec(ctx, `
				INSERT INTO patients (id, account_id, name, age, gender, contact_info, dietary_restrictions, allergies)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, uuid.New(), a.ID, in.Name, in.Profile.Age, in.Profile.Gender, in.Profile.ContactInfo,
				in.Profile.DietaryRestrictions, in.Profile.Allergies)
		case auth.RoleDoctor:
			_, err = tx.Exec(ctx, `
				INSERT INTO doctors (id, account_id, name, specialization, contact_info)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.New(), a.ID, in.Name, in.Profile.Specialization, in.Profile.ContactInfo)
		}
		if err != nil {
			return err
		}

		created = a
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return created, nil
}
