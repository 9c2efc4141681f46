package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New(map[string][]string{
		"tbl_shipment":       {"shipment_id", "product_id", "city", "state", "quantity", "shipped_on"},
		"tbl_product_master": {"product_id", "product_name"},
		"tbl_primary":        {"invoice_id", "distributor_name", "region", "amount", "invoice_date"},
	}, nil)
}

func TestCheck_Valid(t *testing.T) {
	cat := testCatalog()
	queries := map[string]string{
		"aggregate": `SELECT city, SUM(quantity) AS total FROM tbl_shipment
			WHERE city = 'Delhi' GROUP BY city ORDER BY total DESC`,
		"join with aliases": `SELECT p.product_name, SUM(s.quantity)
			FROM tbl_shipment s JOIN tbl_product_master AS p ON s.product_id = p.product_id
			GROUP BY p.product_name`,
		"cte": `WITH recent AS (SELECT city, quantity FROM tbl_shipment WHERE shipped_on >= '2024-01-01')
			SELECT city, SUM(quantity) AS qty FROM recent GROUP BY city`,
		"derived table": `SELECT sub.city FROM (SELECT city FROM tbl_shipment) sub`,
		"postgres date functions": `SELECT date_trunc('month', shipped_on) AS month, COUNT(*)
			FROM tbl_shipment WHERE shipped_on >= CURRENT_DATE - INTERVAL '3 months' GROUP BY 1`,
		"extract and cast":  `SELECT EXTRACT(MONTH FROM shipped_on) AS m, city::text FROM tbl_shipment`,
		"implicit alias":    `SELECT SUM(amount) total FROM tbl_primary`,
		"keyword in string": `SELECT * FROM tbl_shipment WHERE city = 'DROP TABLE x; --'`,
		"in subquery": `SELECT distributor_name FROM tbl_primary
			WHERE invoice_id IN (SELECT invoice_id FROM tbl_primary WHERE amount > 100)`,
		"distinct count": `SELECT distributor_name, COUNT(DISTINCT region) FROM tbl_primary
			GROUP BY distributor_name HAVING COUNT(DISTINCT region) > 5`,
		"case expression":  `SELECT CASE WHEN amount > 10 THEN 'big' ELSE 'small' END bucket FROM tbl_primary`,
		"leading comment":  "-- products\nSELECT product_name FROM tbl_product_master",
		"schema qualified": `SELECT city FROM public.tbl_shipment`,
	}
	for name, sql := range queries {
		t.Run(name, func(t *testing.T) {
			out := Checker{}.Check(sql, cat)
			assert.Equal(t, StatusValid, out.Status, out.Error)
			assert.Empty(t, out.Error)
			assert.Empty(t, out.Corrections)
		})
	}
}

func TestCheck_Rejections(t *testing.T) {
	cat := testCatalog()
	tests := []struct {
		name, sql, reason string
	}{
		{"empty", "   ", "no SQL was generated"},
		{"only comment", "-- nothing", "no SQL was generated"},
		{"delete", "DELETE FROM tbl_shipment", "only SELECT queries are allowed"},
		{"two statements", "SELECT 1; DROP TABLE tbl_shipment", "only a single statement is allowed"},
		{"write inside cte", "WITH x AS (DELETE FROM tbl_shipment RETURNING *) SELECT * FROM x", "DELETE is not allowed"},
		{"select into", "SELECT city INTO backup FROM tbl_shipment", "INTO is not allowed"},
		{"row lock", "SELECT city FROM tbl_shipment FOR UPDATE", "UPDATE is not allowed"},
		{"open paren", "SELECT (city FROM tbl_shipment", "unbalanced parentheses"},
		{"close paren", "SELECT city) FROM tbl_shipment", "unbalanced parentheses"},
		{"open quote", "SELECT city FROM tbl_shipment WHERE city = 'Delhi", "unbalanced quotes"},
		{"unknown column", "SELECT revenue FROM tbl_primary", `unknown column "revenue"`},
		{"unknown table", "SELECT city FROM tbl_sales_data", `unknown table "tbl_sales_data"`},
		{"unknown alias", "SELECT x.city FROM tbl_shipment s", `unknown table or alias "x"`},
		{"column on wrong table", "SELECT p.city FROM tbl_product_master p", `unknown column "city"`},
		{"terminate backend", "SELECT pg_terminate_backend(123)", "function pg_terminate_backend is not allowed"},
		{"qualified admin function", "SELECT city FROM tbl_shipment WHERE pg_catalog.pg_sleep(10) IS NOT NULL", "function pg_sleep is not allowed"},
		{"session setting", "SELECT set_config('statement_timeout', '0', false)", "function set_config is not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Checker{DefaultLimit: 100}.Check(tt.sql, cat)
			assert.Equal(t, StatusInvalid, out.Status)
			assert.Contains(t, out.Error, tt.reason)
			assert.Empty(t, out.SQL)
		})
	}
}

func TestCheck_CorrectsColumn(t *testing.T) {
	out := Checker{}.Check("SELECT prodct_name FROM tbl_product_master", testCatalog())

	require.Equal(t, StatusCorrected, out.Status, out.Error)
	assert.Equal(t, "SELECT product_name FROM tbl_product_master", out.SQL)
	assert.Equal(t, []Correction{{From: "prodct_name", To: "product_name"}}, out.Corrections)
	assert.Contains(t, out.Notes, "corrected prodct_name -> product_name")

	// Without a FROM clause every catalog column is a candidate.
	out = Checker{}.Check("SELECT MAX(invoice_dat) AS latest", testCatalog())

	require.Equal(t, StatusCorrected, out.Status, out.Error)
	assert.Equal(t, "SELECT MAX(invoice_date) AS latest", out.SQL)
}

func TestCheck_CorrectsTableAndQualifiedColumn(t *testing.T) {
	out := Checker{}.Check("SELECT s.cty, s.quantity FROM tbl_shipmnt s", testCatalog())

	require.Equal(t, StatusCorrected, out.Status, out.Error)
	assert.Equal(t, "SELECT s.city, s.quantity FROM tbl_shipment s", out.SQL)
	assert.Equal(t, []Correction{
		{From: "cty", To: "city"},
		{From: "tbl_shipmnt", To: "tbl_shipment"},
	}, out.Corrections)

	out = Checker{}.Check("SELECT tbl_shipmnt.city, SUM(tbl_shipmnt.quantity) FROM tbl_shipmnt GROUP BY tbl_shipmnt.city", testCatalog())

	require.Equal(t, StatusCorrected, out.Status, out.Error)
	assert.Equal(t, "SELECT tbl_shipment.city, SUM(tbl_shipment.quantity) FROM tbl_shipment GROUP BY tbl_shipment.city", out.SQL)
	assert.Equal(t, []Correction{{From: "tbl_shipmnt", To: "tbl_shipment"}}, out.Corrections)
}

func TestCheck_CorrectsQuotedIdentifier(t *testing.T) {
	out := Checker{}.Check(`SELECT "cty" FROM tbl_shipment`, testCatalog())

	require.Equal(t, StatusCorrected, out.Status, out.Error)
	assert.Equal(t, `SELECT "city" FROM tbl_shipment`, out.SQL)
}

func TestCheck_AmbiguousCorrectionIsInvalid(t *testing.T) {
	cat := catalog.New(map[string][]string{"t": {"code1", "code2"}}, nil)

	out := Checker{}.Check("SELECT code FROM t", cat)

	assert.Equal(t, StatusInvalid, out.Status)
	assert.Contains(t, out.Error, `unknown column "code"`)
}

func TestCheck_PartialRepairIsInvalid(t *testing.T) {
	out := Checker{}.Check("SELECT prodct_name, revenue FROM tbl_product_master", testCatalog())

	assert.Equal(t, StatusInvalid, out.Status)
	assert.Contains(t, out.Error, "revenue")
}

func TestCheck_CorrectionsOnlyUseCatalogNames(t *testing.T) {
	cat := testCatalog()
	for _, sql := range []string{
		"SELECT regon FROM tbl_primary",
		"SELECT amont, distributor_nme FROM tbl_primry",
		"SELECT s.quantty FROM tbl_shipment s",
	} {
		out := Checker{}.Check(sql, cat)
		require.Equal(t, StatusCorrected, out.Status, sql)
		for _, c := range out.Corrections {
			known := cat.HasTable(c.To) || len(cat.ColumnOwners(c.To)) > 0
			assert.True(t, known, "%s introduced %q", sql, c.To)
		}
		again := Checker{}.Check(out.SQL, cat)
		assert.Equal(t, StatusValid, again.Status, again.Error)
	}
}

func TestCheck_DefaultLimit(t *testing.T) {
	cat := testCatalog()
	c := Checker{DefaultLimit: 100}

	out := c.Check("SELECT city FROM tbl_shipment;", cat)
	assert.Equal(t, StatusValid, out.Status)
	assert.Equal(t, "SELECT city FROM tbl_shipment LIMIT 100", out.SQL)
	assert.Contains(t, out.Notes, "added LIMIT 100")

	out = c.Check("SELECT city FROM tbl_shipment LIMIT 5", cat)
	assert.Equal(t, "SELECT city FROM tbl_shipment LIMIT 5", out.SQL)
	assert.Empty(t, out.Notes)

	out = c.Check("SELECT * FROM (SELECT city FROM tbl_shipment LIMIT 5) sub", cat)
	assert.Equal(t, "SELECT * FROM (SELECT city FROM tbl_shipment LIMIT 5) sub LIMIT 100", out.SQL)

	out = Checker{}.Check("SELECT city FROM tbl_shipment", cat)
	assert.Equal(t, "SELECT city FROM tbl_shipment", out.SQL)
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize(`SELECT "a""b", 'it''s', x::int /* c */ -- tail`)
	require.NoError(t, err)

	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []string{"SELECT", `a"b`, ",", `'it''s'`, ",", "x", "::", "int"}, texts)
	assert.Equal(t, tQuoted, toks[1].kind)
	assert.Equal(t, tString, toks[3].kind)

	_, err = tokenize(`SELECT "open`)
	assert.ErrorIs(t, err, errUnterminatedIdent)
	_, err = tokenize(`SELECT 1 /* open`)
	assert.ErrorIs(t, err, errUnterminatedBlock)

	toks, err = tokenize(`SELECT $$it's$$, 1.5e3`)
	require.NoError(t, err)
	assert.Equal(t, tString, toks[1].kind)
	assert.Equal(t, "1.5e3", toks[3].text)
}
