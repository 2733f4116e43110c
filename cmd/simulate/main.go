// simulate hammers a running api-server with concurrent booking
// requests aimed at a deliberately small set of practitioners, so many
// workers race for the same slots. At the end it reports the
// booked/conflict split and verifies in Postgres that no slot ended up
// with more than one active appointment.
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
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	PractitionerLimit int
	PatientLimit      int
	PostgresDSN       string
	JWTSecret         string
}

func loadSimConfig() (SimConfig, error) {
	cfg := SimConfig{
		APIBaseURL:        getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 20),
		PractitionerLimit: getInt("SIM_PRACTITIONERS", 3),
		PatientLimit:      getInt("SIM_PATIENTS", 200),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
	}
	if cfg.PostgresDSN == "" {
		return SimConfig{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return SimConfig{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

type Metrics struct {
	Total     int64
	Booked    int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Booked, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Percentiles() (p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(p int) int {
		i := len(sorted) * p / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	return sorted[idx(50)], sorted[idx(95)], sorted[len(sorted)-1]
}

func main() {
	log := logging.New("dev", "info").With().Str("service", "simulate").Logger()

	cfg, err := loadSimConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	practitioners, err := loadIDs(context.Background(), pool, "practitioners", cfg.PractitionerLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load practitioners")
	}
	patients, err := loadIDs(context.Background(), pool, "patients", cfg.PatientLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load patients")
	}
	if len(practitioners) == 0 || len(patients) == 0 {
		log.Fatal().Msg("no practitioners or patients found; run cmd/seed first")
	}

	token, err := mintToken(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("mint token")
	}

	// Next week's grid keeps every target date in the future.
	weekStart := schedule.Shift(schedule.WeekStart(time.Now()), 1)
	grid := schedule.Grid(weekStart, config.DefaultWorkHours, 60)

	log.Info().
		Int("workers", cfg.Workers).
		Int("practitioners", len(practitioners)).
		Int("slots_per_practitioner", len(grid)).
		Dur("duration", cfg.Duration).
		Msg("simulation starting")

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for runCtx.Err() == nil {
				practitioner := practitioners[rng.Intn(len(practitioners))]
				patient := patients[rng.Intn(len(patients))]
				slot := grid[rng.Intn(len(grid))]

				status, latency := book(runCtx, client, cfg.APIBaseURL, token, practitioner, patient, slot)
				if status == 0 {
					continue // request aborted by shutdown
				}
				metrics.Record(latency, status)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	p50, p95, max := metrics.Percentiles()
	log.Info().
		Int64("total", atomic.LoadInt64(&metrics.Total)).
		Int64("booked", atomic.LoadInt64(&metrics.Booked)).
		Int64("conflict", atomic.LoadInt64(&metrics.Conflict)).
		Int64("error", atomic.LoadInt64(&metrics.Error)).
		Dur("p50", p50).
		Dur("p95", p95).
		Dur("max", max).
		Msg("simulation finished")

	// The property the whole design hangs on: no slot may hold two
	// active appointments, no matter how hard the workers raced.
	var dupes int
	err = pool.QueryRow(context.Background(), `
		SELECT count(*)
		FROM (
			SELECT practitioner_id, date, start_time
			FROM appointments
			WHERE status <> 'Cancelled'
			GROUP BY practitioner_id, date, start_time
			HAVING count(*) > 1
		) d
	`).Scan(&dupes)
	if err != nil {
		log.Fatal().Err(err).Msg("duplicate check query failed")
	}

	if dupes > 0 {
		log.Error().Int("double_booked_slots", dupes).Msg("INVARIANT VIOLATED: double-booked slots found")
		os.Exit(1)
	}
	log.Info().Msg("invariant holds: no double-booked slots")
}

func book(ctx context.Context, client *http.Client, baseURL, token string, practitioner, patient uuid.UUID, slot schedule.Slot) (int, time.Duration) {
	body, _ := json.Marshal(map[string]string{
		"practitioner_id": practitioner.String(),
		"patient_id":      patient.String(),
		"date":            slot.Date.Format(time.DateOnly),
		"start_time":      slot.Start.String(),
		"notes":           "simulated booking",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0
		}
		return http.StatusInternalServerError, latency
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return resp.StatusCode, latency
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, table string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY created_at LIMIT %d`, table, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func mintToken(secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub": "simulate",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
