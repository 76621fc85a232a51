package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/formbot/bots/formbot/form"
	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/metrics"
)

const upsertForm = `
INSERT INTO forms (user_id, name, age, gender, photo_id, photo_unique_id, education, wants_newsletter, updated_at)
VALUES (:user_id, :name, :age, :gender, :photo_id, :photo_unique_id, :education, :wants_newsletter, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET
	name = EXCLUDED.name,
	age = EXCLUDED.age,
	gender = EXCLUDED.gender,
	photo_id = EXCLUDED.photo_id,
	photo_unique_id = EXCLUDED.photo_unique_id,
	education = EXCLUDED.education,
	wants_newsletter = EXCLUDED.wants_newsletter,
	updated_at = EXCLUDED.updated_at`

const selectForm = `
SELECT user_id, name, age, gender, photo_id, photo_unique_id, education, wants_newsletter, updated_at
FROM forms WHERE user_id = $1`

type formRow struct {
	UserID          int64          `db:"user_id"`
	Name            sql.NullString `db:"name"`
	Age             sql.NullInt64  `db:"age"`
	Gender          sql.NullString `db:"gender"`
	PhotoID         sql.NullString `db:"photo_id"`
	PhotoUniqueID   sql.NullString `db:"photo_unique_id"`
	Education       sql.NullString `db:"education"`
	WantsNewsletter sql.NullBool   `db:"wants_newsletter"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toRow(userID int64, d form.Data, now time.Time) formRow {
	row := formRow{UserID: userID, UpdatedAt: now}
	if d.Name != nil {
		row.Name = sql.NullString{String: *d.Name, Valid: true}
	}
	if d.Age != nil {
		row.Age = sql.NullInt64{Int64: int64(*d.Age), Valid: true}
	}
	if d.Gender != nil {
		row.Gender = sql.NullString{String: string(*d.Gender), Valid: true}
	}
	if d.PhotoID != nil {
		row.PhotoID = sql.NullString{String: *d.PhotoID, Valid: true}
	}
	if d.PhotoUniqueID != nil {
		row.PhotoUniqueID = sql.NullString{String: *d.PhotoUniqueID, Valid: true}
	}
	if d.Education != nil {
		row.Education = sql.NullString{String: string(*d.Education), Valid: true}
	}
	if d.WantsNewsletter != nil {
		row.WantsNewsletter = sql.NullBool{Bool: *d.WantsNewsletter, Valid: true}
	}
	return row
}

func (r formRow) data() form.Data {
	var d form.Data
	if r.Name.Valid {
		d.Name = &r.Name.String
	}
	if r.Age.Valid {
		age := int(r.Age.Int64)
		d.Age = &age
	}
	if r.Gender.Valid {
		g := form.Gender(r.Gender.String)
		d.Gender = &g
	}
	if r.PhotoID.Valid {
		d.PhotoID = &r.PhotoID.String
	}
	if r.PhotoUniqueID.Valid {
		d.PhotoUniqueID = &r.PhotoUniqueID.String
	}
	if r.Education.Valid {
		e := form.Education(r.Education.String)
		d.Education = &e
	}
	if r.WantsNewsletter.Valid {
		d.WantsNewsletter = &r.WantsNewsletter.Bool
	}
	return d
}

// PostgresStore keeps archived forms in the forms table.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore wraps an open connection; the schema comes from migrations/.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Save upserts the form, so re-filling replaces every column.
func (s *PostgresStore) Save(ctx context.Context, userID int64, data form.Data) error {
	start := time.Now()
	_, err := s.db.NamedExecContext(ctx, upsertForm, toRow(userID, data, s.now().UTC()))
	metrics.IncFormArchived(BackendPostgres, err)
	if err != nil {
		logger.Error(ctx, "archive", "archive.save",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: save form: %v", ErrUnavailable, err)
	}
	logger.Info(ctx, "archive", "archive.save",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Get loads the user's archived form.
func (s *PostgresStore) Get(ctx context.Context, userID int64) (form.Data, bool, error) {
	var row formRow
	if err := s.db.GetContext(ctx, &row, selectForm, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return form.Data{}, false, nil
		}
		logger.Error(ctx, "archive", "archive.get",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return form.Data{}, false, fmt.Errorf("%w: get form: %v", ErrUnavailable, err)
	}
	return row.data(), true, nil
}

// Ping is used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
