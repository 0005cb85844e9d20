package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

func newMockPostgres(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQL(db, Postgres), mock
}

func TestRebind(t *testing.T) {
	pg := &SQL{dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQL{dialect: SQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestPostgresSaveEventRollsBackDuplicates(t *testing.T) {
	s, mock := newMockPostgres(t)
	e := sampleEvent("e1", model.ZoneKey{Country: "UA"}, t0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events (id, document_id, zone, estimated_at, body)`)).
		WithArgs("e1", "d1", "UA", t0.UnixMilli(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	created, err := s.SaveEventWithLinks(context.Background(), e, []model.EntityLink{{EntityID: "a", Role: model.RoleActor}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveEventWritesLinksInTransaction(t *testing.T) {
	s, mock := newMockPostgres(t)
	e := sampleEvent("e1", model.ZoneKey{Country: "UA"}, t0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO entity_links`)).
		WithArgs("a", "e1", "actor").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := s.SaveEventWithLinks(context.Background(), e, []model.EntityLink{{EntityID: "a", Role: model.RoleActor}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEntityBumpOnConflict(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (type, norm_key) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SET mentions = mentions + 1`)).
		WithArgs(t0.UnixMilli(), t0.UnixMilli(), "organization", "united nations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "norm_key", "canonical_name", "aliases", "first_seen", "last_seen", "mentions"}).
			AddRow("ent-1", "organization", "united nations", "United Nations", `["UN"]`, t0.UnixMilli(), t0.UnixMilli(), 5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE entities SET aliases = $1 WHERE id = $2`)).
		WithArgs(`["U.N.","UN"]`, "ent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, created, err := s.GetOrCreateEntity(context.Background(), model.NamedEntity{
		CanonicalName: "United Nations", Type: model.EntityOrganization, Key: "united nations",
		Aliases: []string{"U.N."}, FirstSeen: t0, LastSeen: t0,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ent-1", got.ID)
	assert.EqualValues(t, 5, got.Mentions)
	assert.Equal(t, []string{"U.N.", "UN"}, got.Aliases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingZoneScore(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM zone_scores WHERE zone = $1`)).
		WithArgs("SD/Darfur").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	_, err := s.GetZoneScore(context.Background(), model.ZoneKey{Country: "SD", Region: "Darfur"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
