package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	AdvanceRatio float64
	ReadRatio    float64
	PatientLimit int
	PostgresDSN  string
	Location     *time.Location
}

type actor struct {
	AccountID uuid.UUID
	Token     string
}

type doctorActor struct {
	actor
	DoctorID uuid.UUID
}

type booking struct {
	Patient       int
	AppointmentID uuid.UUID
}

type DataPool struct {
	Patients []actor
	Doctors  []doctorActor
	mu       sync.Mutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random booking so it is cancelled at most once.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	idx := rng.Intn(len(dp.bookings))
	b := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]

	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Advance      OperationMetrics
	MyTurn       OperationMetrics
	DoctorQueue  OperationMetrics
	Appointments OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	log := logging.New(baseCfg.Env, baseCfg.LogLevel).With().Str("service", "simulate").Logger()
	log.Info().Msg("simulator starting")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("advance", cfg.AdvanceRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("clinic-simulate"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	issuer := auth.NewIssuer(baseCfg.JWTSecret, cfg.Duration+10*time.Minute)
	dataPool, err := loadDataPool(ctx, pgPool, issuer, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}

	log.Info().Int("patients", len(dataPool.Patients)).Int("doctors", len(dataPool.Doctors)).Msg("loaded actors")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}

	sim.Run()
	sim.PrintReport()

	if violations := checkInvariants(context.Background(), pgPool); violations > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		AdvanceRatio: getFloat("SIM_ADVANCE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:  base.PostgresDSN,
		Location:     base.ClinicLocation,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.AdvanceRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.AdvanceRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool reads seeded accounts and mints a credential for each one, so
// the run does not spend its time on bcrypt logins.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, issuer *auth.Issuer, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT a.id, a.email, a.name
		FROM accounts a
		JOIN patients p ON p.account_id = a.id
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id auth.Identity
		if err := rows.Scan(&id.AccountID, &id.Email, &id.Name); err != nil {
			rows.Close()
			return nil, err
		}
		id.Role = auth.RolePatient
		token, _, err := issuer.Issue(id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, actor{AccountID: id.AccountID, Token: token})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT a.id, a.email, a.name, d.id
		FROM accounts a
		JOIN doctors d ON d.account_id = a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       auth.Identity
			doctorID uuid.UUID
		)
		if err := rows.Scan(&id.AccountID, &id.Email, &id.Name, &doctorID); err != nil {
			return nil, err
		}
		id.Role = auth.RoleDoctor
		token, _, err := issuer.Issue(id)
		if err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, doctorActor{
			actor:    actor{AccountID: id.AccountID, Token: token},
			DoctorID: doctorID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio+s.config.AdvanceRatio:
				s.doAdvance(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doRead(ctx, s.randomPatient(rng).Token, "/api/patient/my-turn", &s.metrics.MyTurn, http.StatusNotFound)
				case 1:
					s.doRead(ctx, s.randomPatient(rng).Token, "/api/patient/my-appointments", &s.metrics.Appointments, 0)
				case 2:
					s.doRead(ctx, s.randomDoctor(rng).Token, "/api/doctor/my-queue", &s.metrics.DoctorQueue, 0)
				}
			}
		}
	}
}

func (s *Simulator) randomPatient(rng *rand.Rand) actor {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) randomDoctor(rng *rand.Rand) doctorActor {
	return s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
}

// randomSlot picks a bookable quarter hour tomorrow in the clinic's zone.
func (s *Simulator) randomSlot(rng *rand.Rand) time.Time {
	loc := s.config.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().In(loc)
	day := now.AddDate(0, 0, 1)
	quarter := rng.Intn((clinic.ClosingHour - clinic.OpeningHour) * 60 / clinic.SlotMinutes)
	start := time.Date(day.Year(), day.Month(), day.Day(), clinic.OpeningHour, 0, 0, 0, loc)
	return start.Add(time.Duration(quarter*clinic.SlotMinutes) * time.Minute)
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientIdx := rng.Intn(len(s.pool.Patients))
	patient := s.pool.Patients[patientIdx]
	doctor := s.randomDoctor(rng)

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/api/patient/appointments", patient.Token, map[string]any{
		"doctor_id":        doctor.DoctorID.String(),
		"appointment_time": s.randomSlot(rng),
	})
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created struct {
				AppointmentID uuid.UUID `json:"appointment_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&created); err == nil && created.AppointmentID != uuid.Nil {
				s.pool.AddBooking(booking{Patient: patientIdx, AppointmentID: created.AppointmentID})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}
	patient := s.pool.Patients[b.Patient]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodDelete, "/api/patient/appointments/"+b.AppointmentID.String(), patient.Token, nil)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		// Already called or completed by the doctor.
		conflict = resp.StatusCode == http.StatusNotFound
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doAdvance(ctx context.Context, rng *rand.Rand) {
	doctor := s.randomDoctor(rng)

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPut, "/api/doctor/complete-current-patient", doctor.Token, nil)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Advance.Record(latency, success, conflict)
}

// doRead treats expectedMiss as a non-error outcome, e.g. 404 from my-turn
// for a patient with nothing booked.
func (s *Simulator) doRead(ctx context.Context, token, path string, om *OperationMetrics, expectedMiss int) {
	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, path, token, nil)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		success = resp.StatusCode == http.StatusOK
		conflict = expectedMiss != 0 && resp.StatusCode == expectedMiss
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Book appointment", &s.metrics.Booking)
	printOperationReport("Cancel appointment", &s.metrics.Cancel)
	printOperationReport("Complete and advance", &s.metrics.Advance)
	printOperationReport("My turn", &s.metrics.MyTurn)
	printOperationReport("My appointments", &s.metrics.Appointments)
	printOperationReport("Doctor queue", &s.metrics.DoctorQueue)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

var invariantChecks = []struct {
	name  string
	query string
}{
	{
		name: "doctors with more than one consulting entry",
		query: `
			SELECT count(*) FROM (
				SELECT doctor_id FROM queue_entries
				WHERE status = 'consulting'
				GROUP BY doctor_id HAVING count(*) > 1
			) t`,
	},
	{
		name: "duplicate queue numbers",
		query: `
			SELECT count(*) FROM (
				SELECT doctor_id, queue_number FROM queue_entries
				GROUP BY doctor_id, queue_number HAVING count(*) > 1
			) t`,
	},
	{
		name: "patients with two active appointments for one doctor",
		query: `
			SELECT count(*) FROM (
				SELECT patient_id, doctor_id FROM appointments
				WHERE status IN ('scheduled', 'in_queue')
				GROUP BY patient_id, doctor_id HAVING count(*) > 1
			) t`,
	},
	{
		name: "appointment and queue entry out of step",
		query: `
			SELECT count(*)
			FROM appointments a
			JOIN queue_entries q ON q.appointment_id = a.id
			WHERE (a.status, q.status) NOT IN (
				('scheduled', 'waiting'),
				('in_queue', 'consulting'),
				('completed', 'completed'),
				('cancelled', 'cancelled'),
				('denied', 'denied')
			)`,
	},
}

// checkInvariants prints one line per check and returns the number that failed.
func checkInvariants(ctx context.Context, pool *pgxpool.Pool) int {
	fmt.Println(repeat("=", 80))
	fmt.Println("INVARIANTS")
	fmt.Println(repeat("=", 80))

	failed := 0
	for _, c := range invariantChecks {
		var n int
		if err := pool.QueryRow(ctx, c.query).Scan(&n); err != nil {
			fmt.Printf("  %-55s ERROR %v\n", c.name, err)
			failed++
			continue
		}
		status := "OK"
		if n > 0 {
			status = "VIOLATED"
			failed++
		}
		fmt.Printf("  %-55s %s (%d)\n", c.name, status, n)
	}
	return failed
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
