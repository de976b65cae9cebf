package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/risk"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{Postgres, "select 1 where a = ? and b = ?", "select 1 where a = $1 and b = $2"},
		{Postgres, "select '?' where a = ?", "select '?' where a = $1"},
		{Postgres, "select 1", "select 1"},
		{MySQL, "select 1 where a = ?", "select 1 where a = ?"},
		{SQLite, "select 1 where a = ?", "select 1 where a = ?"},
	}
	for _, tc := range cases {
		if got := tc.dialect.Rebind(tc.in); got != tc.want {
			t.Fatalf("%s.Rebind(%q) = %q, want %q", tc.dialect, tc.in, got, tc.want)
		}
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"postgres": Postgres, "PGX": Postgres, "mysql": MySQL, "sqlite3": SQLite} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPrepareDSN(t *testing.T) {
	dsn, err := MySQL.PrepareDSN("trail:secret@tcp(db:3306)/trailwatch")
	if err != nil {
		t.Fatalf("PrepareDSN: %v", err)
	}
	for _, want := range []string{"parseTime=true", "clientFoundRows=true"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %s", dsn, want)
		}
	}
	lite, _ := SQLite.PrepareDSN("file:tw.db?cache=shared")
	if !strings.Contains(lite, "&_pragma=foreign_keys(1)") {
		t.Fatalf("sqlite dsn not extended: %q", lite)
	}
	pg, _ := Postgres.PrepareDSN("postgres://x")
	if pg != "postgres://x" {
		t.Fatalf("postgres dsn altered: %q", pg)
	}
}

var alertCols = []string{"id", "alert_type", "severity", "title", "message", "forest_id", "trail_id",
	"start_date", "end_date", "is_active", "created_by", "manual", "low_streak", "created_at", "updated_at"}

func TestActiveAlertLocksInsideTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)from alerts\s+where is_active = \$1 and alert_type = \$2 and trail_id = \$3.*for update`).
		WithArgs(true, "High Activity", "trail-1").
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow(
			"a-1", "High Activity", "High", "title", "msg", nil, "trail-1",
			now, nil, true, "system", false, 1, now, now))
	mock.ExpectCommit()

	var got *alert.Alert
	err = s.WithinTx(context.Background(), func(tx alert.Store) error {
		var err error
		got, err = tx.ActiveAlert(context.Background(), alert.TrailScope("trail-1"), alert.TypeHighActivity)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if got == nil || got.Severity != risk.High || got.Scope != alert.TrailScope("trail-1") || got.LowStreak != 1 {
		t.Fatalf("unexpected alert: %+v", got)
	}
	if got.EndDate != nil {
		t.Fatalf("expected no end date, got %v", got.EndDate)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestObserveLocksTrailRowBeforeReading(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`select id from trails where id = \$1 for update`).
		WithArgs("trail-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("trail-1"))
	mock.ExpectQuery(`(?s)from alerts\s+where is_active = \$1 and alert_type = \$2 and trail_id = \$3.*for update`).
		WithArgs(true, "High Activity", "trail-1").
		WillReturnRows(sqlmock.NewRows(alertCols))
	mock.ExpectExec(`insert into alerts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := alert.NewCoordinator(s, alert.WithIDGenerator(func() string { return "alert-1" }))
	d, err := c.Observe(context.Background(), alert.TrailScope("trail-1"), risk.High)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if d.Action != alert.ActionCreate {
		t.Fatalf("expected create, got %s", d.Action)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockScopeForestOnMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, MySQL)

	mock.ExpectBegin()
	mock.ExpectQuery(`select id from forests where id = \? for update`).
		WithArgs("forest-9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err = s.WithinTx(context.Background(), func(tx alert.Store) error {
		return tx.(alert.ScopeLocker).LockScope(context.Background(), alert.ForestScope("forest-9"))
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing forest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockScopeOutsideTransactionIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	if err := New(db, Postgres).LockScope(context.Background(), alert.TrailScope("trail-1")); err != nil {
		t.Fatalf("LockScope: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestActiveAlertNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, MySQL)

	mock.ExpectQuery(`from alerts\s+where is_active = \? and alert_type = \? and forest_id = \?`).
		WillReturnError(sql.ErrNoRows)

	got, err := s.ActiveAlert(context.Background(), alert.ForestScope("f-1"), alert.TypeHighActivity)
	if err != nil || got != nil {
		t.Fatalf("ActiveAlert = %v, %v; want nil, nil", got, err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("update trails set is_closed").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err = s.WithinTx(context.Background(), func(tx alert.Store) error {
		if err := tx.SetTrailClosure(context.Background(), "trail-1", true, "bears"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAlertNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	mock.ExpectExec(`update alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.UpdateAlert(context.Background(), &alert.Alert{ID: "missing", Severity: risk.Low})
	if !errors.Is(err, alert.ErrNotFound) {
		t.Fatalf("expected alert.ErrNotFound, got %v", err)
	}
}

func TestPersistDangerLevelUnknownTrail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update trails set current_danger_level = \$1, last_updated = \$2\s+where id = \$3`).
		WithArgs("Critical", at, "nowhere").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.PersistDangerLevel(context.Background(), "nowhere", risk.Critical, at)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindCredentials(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, Postgres)

	mock.ExpectQuery(`select id, password_hash, is_admin from users where email = \$1`).
		WithArgs("ranger@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "is_admin"}).AddRow("u-1", "hash", true))
	mock.ExpectQuery(`from users`).WithArgs("ghost@example.org").WillReturnError(sql.ErrNoRows)

	c, err := s.FindCredentials(context.Background(), " Ranger@Example.org ")
	if err != nil {
		t.Fatalf("FindCredentials: %v", err)
	}
	if c.UserID != "u-1" || !c.IsAdmin {
		t.Fatalf("unexpected credentials: %+v", c)
	}
	if _, err := s.FindCredentials(context.Background(), "ghost@example.org"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
