package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
	}{
		{"postgres://u:p@db/app", DriverPostgres, "postgres://u:p@db/app?default_query_exec_mode=simple_protocol"},
		{"postgresql://db/app?sslmode=disable", DriverPostgres, "postgresql://db/app?sslmode=disable&default_query_exec_mode=simple_protocol"},
		{"data/usage.db", DriverSQLite, "data/usage.db?_pragma=busy_timeout(5000)&_time_format=sqlite"},
		{"sqlite://usage.db", DriverSQLite, "usage.db?_pragma=busy_timeout(5000)&_time_format=sqlite"},
		{"", DriverSQLite, "mailbrief.db?_pragma=busy_timeout(5000)&_time_format=sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn := DriverFor(tt.url)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestNewSQL_SQLite(t *testing.T) {
	db, err := NewSQL(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.Get(&one, "SELECT 1"))
	assert.Equal(t, 1, one)
}
