package notes

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func noteColumns() []string {
	return []string{"id", "user_id", "title", "body", "changed_at", "revision", "deleted", "attachment_key", "attachment_status"}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(noteColumns()).
		AddRow("n-1", "u-1", "Title", "body", ts, int64(3), false, "", "")
	mock.ExpectQuery(`SELECT\s+id,\s*user_id,\s*title`).
		WithArgs("u-1", "n-1").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "u-1", "n-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != "n-1" || got.Revision != 3 || !got.ChangedAt.Equal(ts) {
		t.Fatalf("unexpected note: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*user_id,\s*title`).
		WithArgs("u-1", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "u-1", "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+notes\s*\(id,\s*user_id,\s*title,\s*body,\s*changed_at,\s*revision,\s*deleted\)\s*VALUES.*ON\s+CONFLICT\s*\(user_id,\s*id\)\s*DO\s+UPDATE\s+SET`

	ts := time.Now()
	mock.ExpectExec(q).
		WithArgs("n-1", "u-1", "Title", "body", ts, int64(4), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Note{ID: "n-1", UserID: "u-1", Title: "Title", Body: "body", ChangedAt: ts, Revision: 4}
	if err := repo.Upsert(context.Background(), n); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+notes`).
		WillReturnError(errors.New("db down"))

	err := repo.Upsert(context.Background(), &models.Note{ID: "n-1", UserID: "u-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSelectChangedSince_OrdersByRevisionThenID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+id,\s*user_id,\s*title.*WHERE\s+user_id\s*=\s*\$1\s+AND\s+revision\s*>\s*\$2\s+ORDER\s+BY\s+revision,\s*id`

	ts := time.Now()
	rows := sqlmock.NewRows(noteColumns()).
		AddRow("n-1", "u-1", "a", "", ts, int64(5), false, "", "").
		AddRow("n-2", "u-1", "b", "", ts, int64(6), true, "", "")
	mock.ExpectQuery(q).
		WithArgs("u-1", int64(4)).
		WillReturnRows(rows)

	got, err := repo.SelectChangedSince(context.Background(), "u-1", 4)
	if err != nil {
		t.Fatalf("SelectChangedSince error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "n-1" || !got[1].Deleted {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSelectChangedSince_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*user_id,\s*title`).
		WithArgs("u-1", int64(10)).
		WillReturnRows(sqlmock.NewRows(noteColumns()))

	got, err := repo.SelectChangedSince(context.Background(), "u-1", 10)
	if err != nil {
		t.Fatalf("SelectChangedSince error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty delta, got %+v", got)
	}
}

func TestPurgeDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+notes\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+deleted\s+AND\s+revision\s*<\s*\$2`).
		WithArgs("u-1", int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.PurgeDeleted(context.Background(), "u-1", 20); err != nil {
		t.Fatalf("PurgeDeleted error: %v", err)
	}
}

func TestSetAttachment_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+notes\s+SET\s+attachment_key`).
		WithArgs("u-1", "ghost", "key", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetAttachment(context.Background(), "u-1", "ghost", "key", "pending")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSetAttachment_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+notes\s+SET\s+attachment_key`).
		WithArgs("u-1", "n-1", "key", "uploaded").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetAttachment(context.Background(), "u-1", "n-1", "key", "uploaded"); err != nil {
		t.Fatalf("SetAttachment error: %v", err)
	}
}
