// Package dbtest provides an in-memory SQLite database preloaded with a small
// snack-distribution dataset, for tests across packages.
package dbtest

import (
	"context"
	"testing"

	"querypilot/cli/internal/database"
)

// Tables lists the fixture tables in the order they are created.
var Tables = []string{"tbl_product_master", "tbl_shipment", "tbl_primary"}

const schema = `
CREATE TABLE tbl_product_master (
	product_id   INTEGER PRIMARY KEY,
	product_name TEXT NOT NULL,
	category     TEXT NOT NULL,
	mrp          REAL NOT NULL
);
CREATE TABLE tbl_shipment (
	shipment_id INTEGER PRIMARY KEY,
	product_id  INTEGER NOT NULL,
	city        TEXT NOT NULL,
	state       TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	shipped_on  TEXT NOT NULL
);
CREATE TABLE tbl_primary (
	invoice_id       INTEGER PRIMARY KEY,
	distributor_name TEXT NOT NULL,
	region           TEXT NOT NULL,
	amount           REAL NOT NULL,
	invoice_date     TEXT NOT NULL
);

INSERT INTO tbl_product_master VALUES
	(1, 'Bhujia', 'Namkeen', 55.0),
	(2, 'Aloo Bhujia', 'Namkeen', 45.0),
	(3, 'Moong Dal', 'Namkeen', 40.0),
	(4, 'Soan Papdi', 'Sweets', 120.0),
	(5, 'Rasgulla', 'Sweets', 150.0);

INSERT INTO tbl_shipment VALUES
	(1, 1, 'Delhi', 'Delhi NCR', 120, '2024-01-05'),
	(2, 2, 'Delhi', 'Delhi NCR', 80, '2024-01-09'),
	(3, 1, 'Delhi', 'Delhi NCR', 60, '2024-02-11'),
	(4, 3, 'Dehri', 'Bihar', 40, '2024-02-14'),
	(5, 4, 'Mumbai', 'Maharashtra', 200, '2024-03-02'),
	(6, 5, 'Kolkata', 'West Bengal', 150, '2024-03-20');

INSERT INTO tbl_primary VALUES
	(1, 'Sharma Traders', 'North', 125000.5, '2024-01-31'),
	(2, 'Gupta Agencies', 'East', 98000.0, '2024-02-29'),
	(3, 'Patel Foods', 'West', 143250.75, '2024-03-31');
`

// Open returns the fixture database. It is closed when the test ends.
func Open(t testing.TB) *database.SQLite {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:", database.Options{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Exec(ctx, schema); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return db
}
