package psql_test

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/jtest"

	"github.com/luno/puma/psql"
)

// ConnectTestDB returns a connection to a new database holding a checkpoints
// table called name. The test is skipped unless DB_TEST_URI is set.
func ConnectTestDB(t *testing.T, name string) *sql.DB {
	uri := os.Getenv("DB_TEST_URI")
	if uri == "" {
		t.Skip("DB_TEST_URI not set")
	}

	admin, err := sql.Open("mysql", uri)
	jtest.RequireNil(t, err)

	dbName := fmt.Sprintf("test_%d", rand.Int())
	_, err = admin.ExecContext(context.Background(), "create database "+dbName)
	jtest.RequireNil(t, err)

	t.Log("created database: " + dbName)

	t.Cleanup(func() {
		_, err := admin.ExecContext(context.Background(), "drop database "+dbName)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, admin.Close())
	})

	dbc, err := sql.Open("mysql", uri+dbName+"?parseTime=true&collation=utf8mb4_general_ci")
	jtest.RequireNil(t, err)

	t.Cleanup(func() {
		jtest.RequireNil(t, dbc.Close())
	})

	_, err = dbc.Exec(psql.CreateTableSQL(name))
	jtest.RequireNil(t, err)

	dbc.SetMaxOpenConns(10)
	_, err = dbc.Exec("set time_zone='+00:00';")
	jtest.RequireNil(t, err)

	return dbc
}
