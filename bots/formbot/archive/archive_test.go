package archive

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/formbot/bots/formbot/form"
)

func sample(name string) form.Data {
	age := 30
	g := form.GenderMale
	e := form.EducationHigher
	photo, uniq := "file", "uniq"
	news := true
	return form.Data{Name: &name, Age: &age, Gender: &g, PhotoID: &photo, PhotoUniqueID: &uniq, Education: &e, WantsNewsletter: &news}
}

func TestMemoryStoreOverwritesAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, ok, err := s.Get(ctx, 1); ok || err != nil {
		t.Fatalf("expected no form, got ok=%v err=%v", ok, err)
	}

	first := sample("Ivan")
	if err := s.Save(ctx, 1, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	*first.Name = "Mutated"

	got, ok, _ := s.Get(ctx, 1)
	if !ok || *got.Name != "Ivan" {
		t.Fatalf("stored form must not alias the caller's data: %+v", got)
	}

	second := form.Data{Name: sample("Anna").Name}
	_ = s.Save(ctx, 1, second)
	got, _, _ = s.Get(ctx, 1)
	if *got.Name != "Anna" || got.Age != nil || got.Education != nil {
		t.Fatalf("save must replace the whole form, got %+v", got)
	}
}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	s := NewPostgresStore(sqlx.NewDb(raw, "postgres"))
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestPostgresSaveUpserts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO forms .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(int64(7), "Ivan", int64(30), "male", "file", "uniq", "higher", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Save(context.Background(), 7, sample("Ivan")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresSaveWrapsFailure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO forms`).WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), 7, sample("Ivan"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"user_id", "name", "age", "gender", "photo_id", "photo_unique_id", "education", "wants_newsletter", "updated_at"}
	mock.ExpectQuery(`SELECT .* FROM forms WHERE user_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(7), "Ivan", int64(30), "male", "file", "uniq", "higher", false, time.Now()))

	got, ok, err := s.Get(context.Background(), 7)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if *got.Name != "Ivan" || *got.Age != 30 || *got.Gender != form.GenderMale || *got.Education != form.EducationHigher || *got.WantsNewsletter {
		t.Fatalf("unexpected form %+v", got)
	}
}

func TestPostgresGetMissingAndFailing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM forms`).WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)
	if _, ok, err := s.Get(context.Background(), 1); ok || err != nil {
		t.Fatalf("missing form: ok=%v err=%v", ok, err)
	}

	mock.ExpectQuery(`SELECT .* FROM forms`).WithArgs(int64(2)).WillReturnError(errors.New("timeout"))
	if _, _, err := s.Get(context.Background(), 2); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
