package sqlexec

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/database"
	"querypilot/cli/internal/database/dbtest"
)

func TestExecute_Success(t *testing.T) {
	ex := &Executor{Conn: dbtest.Open(t)}

	res := ex.Execute(context.Background(),
		"SELECT city, SUM(quantity) AS total FROM tbl_shipment GROUP BY city ORDER BY city")

	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, []string{"city", "total"}, res.Columns)
	require.NotEmpty(t, res.Rows)
	city, ok := res.Rows[0].Get("city")
	assert.True(t, ok)
	assert.IsType(t, "", city)
	assert.Contains(t, res.Rows[0].Map(), "total")
}

func TestExecute_EmptyResult(t *testing.T) {
	ex := &Executor{Conn: dbtest.Open(t)}

	res := ex.Execute(context.Background(), "SELECT city FROM tbl_shipment WHERE city = 'Atlantis'")

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"city"}, res.Columns)
}

func TestExecute_WriteIsRefused(t *testing.T) {
	db := dbtest.Open(t)
	ex := &Executor{Conn: db}

	res := ex.Execute(context.Background(), "DELETE FROM tbl_shipment")
	assert.Equal(t, StatusFailure, res.Status)
	assert.NotEmpty(t, res.Error)

	after := ex.Execute(context.Background(), "SELECT COUNT(*) AS n FROM tbl_shipment")
	require.Equal(t, StatusSuccess, after.Status)
	n, _ := after.Rows[0].Get("n")
	assert.NotEqual(t, int64(0), n)
}

func TestExecute_DriverErrorIsMasked(t *testing.T) {
	ex := &Executor{Conn: failingConn{err: errors.New(
		"failed to connect to postgres://admin:hunter2@db:5432/sales")}}

	res := ex.Execute(context.Background(), "SELECT 1")

	assert.Equal(t, StatusFailure, res.Status)
	assert.NotContains(t, res.Error, "hunter2")
	assert.Contains(t, res.Error, "failed to connect")
}

func TestExecute_NoConn(t *testing.T) {
	res := (&Executor{}).Execute(context.Background(), "SELECT 1")
	assert.Equal(t, StatusFailure, res.Status)
}

func TestNotExecuted(t *testing.T) {
	res := NotExecuted("unknown column \"revenue\"")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, `query was not executed: unknown column "revenue"`, res.Error)
}

func TestNormalize(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var numeric pgtype.Numeric
	require.NoError(t, numeric.Scan("12.5"))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"uuid array", [16]byte(id), id.String()},
		{"uuid type", id, id.String()},
		{"text bytes", []byte("Delhi"), "Delhi"},
		{"binary bytes", []byte{0xff, 0x00}, `\xff00`},
		{"date", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "2025-03-01"},
		{"timestamp", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), "2025-03-01T10:30:00Z"},
		{"numeric", numeric, 12.5},
		{"null numeric", pgtype.Numeric{}, nil},
		{"big int", big.NewInt(42), int64(42)},
		{"plain", int64(7), int64(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestResultJSON(t *testing.T) {
	res := Result{
		Columns: []string{"city", "total"},
		Rows:    []Row{{Columns: []string{"city", "total"}, Values: []any{"Delhi", 30}}},
		Status:  StatusSuccess,
	}

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["city","total"],"rows":[["Delhi",30]],"status":"success"}`, string(b))
}

type failingConn struct{ err error }

func (f failingConn) Columns(context.Context, string) ([]database.Column, error) { return nil, f.err }
func (f failingConn) DistinctValues(context.Context, string, string, int) ([]string, error) {
	return nil, f.err
}
func (f failingConn) QueryReadOnly(context.Context, string) (database.Rows, error) {
	return database.Rows{}, f.err
}
func (f failingConn) Dialect() string            { return "PostgreSQL" }
func (f failingConn) Ping(context.Context) error { return f.err }
func (f failingConn) Close()                     {}
