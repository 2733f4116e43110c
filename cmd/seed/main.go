// seed creates the schema and fills it with fake practitioners,
// patients and a scattering of booked appointments on next week's grid.
package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS practitioners (
	id           uuid PRIMARY KEY,
	display_name text NOT NULL,
	specialty    text,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patients (
	id           uuid PRIMARY KEY,
	display_name text NOT NULL,
	email        text,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id              uuid PRIMARY KEY,
	practitioner_id uuid NOT NULL REFERENCES practitioners (id),
	patient_id      uuid NOT NULL REFERENCES patients (id),
	date            date NOT NULL,
	start_time      time NOT NULL,
	status          text NOT NULL,
	notes           text,
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now()
);

-- The no-double-booking invariant: at most one non-cancelled
-- appointment per practitioner, date and start time. The insert path
-- relies on this index being the arbiter of booking races.
CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_key
	ON appointments (practitioner_id, date, start_time)
	WHERE status <> 'Cancelled';

CREATE TABLE IF NOT EXISTS event_logs (
	id             bigserial PRIMARY KEY,
	event_type     text NOT NULL,
	appointment_id uuid,
	payload        jsonb,
	created_at     timestamptz NOT NULL DEFAULT now()
);
`

func main() {
	log := logging.New("dev", "info").With().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schemaSQL); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}
	log.Info().Msg("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	practitioners, err := seedPractitioners(context.Background(), pool, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("seed practitioners")
	}
	patients, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	booked, err := seedAppointments(context.Background(), pool, practitioners, patients)
	if err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().
		Int("practitioners", len(practitioners)).
		Int("patients", len(patients)).
		Int("appointments", booked).
		Msg("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	specialties := []string{
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

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, display_name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	const batchSize = 100

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, display_name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// seedAppointments scatters Scheduled appointments over next week's
// grid, roughly a third of each practitioner's slots.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, practitioners, patients []uuid.UUID) (int, error) {
	weekStart := schedule.Shift(schedule.WeekStart(time.Now()), 1)
	grid := schedule.Grid(weekStart, config.DefaultWorkHours, 60)

	booked := 0
	for _, practitioner := range practitioners {
		for _, slot := range grid {
			if gofakeit.Number(0, 2) != 0 {
				continue
			}
			patient := patients[gofakeit.Number(0, len(patients)-1)]

			_, err := pool.Exec(ctx, `
				INSERT INTO appointments (id, practitioner_id, patient_id, date, start_time, status, notes, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::time, 'Scheduled', $6, now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), practitioner, patient, slot.Date, slot.Start.String(), gofakeit.Sentence(6))
			if err != nil {
				return booked, err
			}
			booked++
		}
	}

	return booked, nil
}
