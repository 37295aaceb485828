package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Database: "jobsum", Username: "u", Password: "p"},
			want: "host=db port=5432 dbname=jobsum user=u password=p sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Database: "jobsum", Username: "u", Password: "p"},
			want: "u:p@tcp(db:3306)/jobsum",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Database: "./data/jobsum.db"},
			want: "./data/jobsum.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			require.NoError(t, tt.cfg.Validate())
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestDatabaseConfig_Validate(t *testing.T) {
	assert.Error(t, (&DatabaseConfig{}).Validate())
	assert.Error(t, (&DatabaseConfig{Driver: "oracle", Database: "x"}).Validate())
	assert.Error(t, (&DatabaseConfig{Driver: "postgres", Database: "x"}).Validate())
	assert.Error(t, (&DatabaseConfig{Driver: "sqlite"}).Validate())
	assert.NoError(t, (&DatabaseConfig{Driver: "sqlite3", Database: "x.db"}).Validate())
}

func TestDatabaseConfig_DriverName(t *testing.T) {
	assert.Equal(t, "sqlite3", (&DatabaseConfig{Driver: "sqlite"}).DriverName())
	assert.Equal(t, "postgres", (&DatabaseConfig{Driver: "postgres"}).DriverName())
}

func TestDBPool_SharesConnections(t *testing.T) {
	pool := NewDBPool()
	defer pool.Close()

	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "sub", "jobsum.db")}
	cfg.SetDefaults()

	a, err := pool.Get(cfg)
	require.NoError(t, err)
	b, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	var one int
	require.NoError(t, a.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
