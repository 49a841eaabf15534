package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
	}
}

func TestMigrationsCoverEveryTable(t *testing.T) {
	var all strings.Builder
	for _, m := range Migrations() {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{
		"organizations", "schools", "principals", "api_tokens", "roles", "role_assignments",
		"audit_events", "admission_applications", "student_transfers", "workflow_transitions",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := Migrations()
	applied := sqlmock.NewRows([]string{"version"})
	for _, m := range migrations[:len(migrations)-1] {
		applied.AddRow(m.Version)
	}
	last := migrations[len(migrations)-1]

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(applied)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(last.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(last.Version, last.Description).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS organizations").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
