package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/internal/logging"
)

// Seeded accounts use predictable emails so cmd/simulate can log in as them.
const (
	adminEmail    = "admin@clinic.test"
	staffEmail    = "staff@clinic.test"
	doctorEmail   = "doctor%03d@clinic.test"
	patientEmail  = "patient%05d@clinic.test"
	defaultSecret = "clinic-pass"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to seed")
	patients := flag.Int("patients", 2000, "number of patients to seed")
	flag.Parse()

	_ = godotenv.Load()
	log := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = defaultSecret
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.WithApplicationName("clinic-seed"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	// One hash for every seeded account keeps seeding fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("hash seed password")
	}

	s := &seeder{pool: pool, hash: string(hash), log: log}
	if err := s.seedStaff(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("seed admin and staff")
	}
	if err := s.seedDoctors(context.Background(), *doctors); err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := s.seedPatients(context.Background(), *patients); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

type seeder struct {
	pool *pgxpool.Pool
	hash string
	log  zerolog.Logger
}

func (s *seeder) insertAccount(ctx context.Context, tx pgx.Tx, email, name string, role auth.Role) (uuid.UUID, error) {
	id := uuid.New()
	tag, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, name, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (email) DO NOTHING
	`, id, email, s.hash, role, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert account %s: %w", email, err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, nil
	}
	return id, nil
}

func (s *seeder) seedStaff(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.insertAccount(ctx, tx, adminEmail, "Clinic Admin", auth.RoleAdmin); err != nil {
			return err
		}
		_, err := s.insertAccount(ctx, tx, staffEmail, gofakeit.Name(), auth.RoleStaff)
		return err
	})
}

func (s *seeder) seedDoctors(ctx context.Context, count int) error {
	s.log.Info().Int("count", count).Msg("seeding doctors")

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 1; i <= count; i++ {
			name := gofakeit.LastName()
			accountID, err := s.insertAccount(ctx, tx, fmt.Sprintf(doctorEmail, i), name, auth.RoleDoctor)
			if err != nil {
				return err
			}
			if accountID == uuid.Nil {
				continue
			}

			contact := gofakeit.Phone()
			_, err = tx.Exec(ctx, `
				INSERT INTO doctors (id, account_id, name, specialization, contact_info)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.New(), accountID, name, specialties[gofakeit.Number(0, len(specialties)-1)], contact)
			if err != nil {
				return fmt.Errorf("insert doctor: %w", err)
			}
		}
		return nil
	})
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	genders := []string{"female", "male", "other"}

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				name := gofakeit.Name()
				accountID, err := s.insertAccount(ctx, tx, fmt.Sprintf(patientEmail, i+1), name, auth.RolePatient)
				if err != nil {
					return err
				}
				if accountID == uuid.Nil {
					continue
				}

				age := gofakeit.Number(1, 95)
				gender := genders[gofakeit.Number(0, len(genders)-1)]
				contact := gofakeit.Phone()
				_, err = tx.Exec(ctx, `
					INSERT INTO patients (id, account_id, name, age, gender, contact_info)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, uuid.New(), accountID, name, age, gender, contact)
				if err != nil {
					return fmt.Errorf("insert patient: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.log.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
