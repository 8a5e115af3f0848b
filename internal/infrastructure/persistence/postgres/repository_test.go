package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

func newMockDB(t *testing.T) (*database.PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.WrapPostgres(sqlx.NewDb(db, "postgres"), zap.NewNop()), mock
}

func procedures() map[invoice.Vendor]string {
	return map[invoice.Vendor]string{
		invoice.VendorMaxis:  "billing.upsert_maxis",
		invoice.VendorCelcom: "billing.upsert_celcom",
	}
}

func maxisRequest() *port.PersistRequest {
	return &port.PersistRequest{
		Package: &invoice.Package{
			Invoice: invoice.Header{
				Vendor:        invoice.VendorMaxis,
				InvoiceNumber: "INV-1",
				AccountNumber: "ACC-1",
				GrandTotal:    invoice.MustMoney("10.00"),
			},
			Numbers: []invoice.NumberLine{{MSISDN: "0123456789", LineTotal: invoice.MustMoney("10.00")}},
		},
		Fingerprint:   "fp-1",
		Filename:      "maxis.pdf",
		ParserVersion: "test",
		Mode:          port.PersistDefault,
	}
}

var (
	lockSQL   = regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")
	lookupSQL = regexp.QuoteMeta("SELECT persisted_id FROM ingest_log WHERE fingerprint = $1")
	maxisSQL  = regexp.QuoteMeta("SELECT billing.upsert_maxis($1::jsonb)")
	logSQL    = regexp.QuoteMeta("INSERT INTO ingest_log")
)

func TestNewRepository_RejectsUnsafeNames(t *testing.T) {
	db, _ := newMockDB(t)

	_, err := NewRepository(db, map[invoice.Vendor]string{invoice.VendorMaxis: "x; DROP TABLE y"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRepository(db, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRepository(db, procedures(), zap.NewNop())
	assert.NoError(t, err)
}

func TestRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(lockSQL).WithArgs("fp-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lookupSQL).WithArgs("fp-1").WillReturnRows(sqlmock.NewRows([]string{"persisted_id"}))
	mock.ExpectQuery(maxisSQL).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("maxis-42"))
	mock.ExpectExec(logSQL).WithArgs("fp-1", "maxis-42", "maxis", "INV-1", "maxis.pdf", "test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.Upsert(context.Background(), maxisRequest())
	require.NoError(t, err)
	assert.Equal(t, "maxis-42", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(lockSQL).WithArgs("fp-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lookupSQL).WithArgs("fp-1").
		WillReturnRows(sqlmock.NewRows([]string{"persisted_id"}).AddRow("maxis-7"))
	mock.ExpectRollback()

	id, err := repo.Upsert(context.Background(), maxisRequest())
	assert.ErrorIs(t, err, port.ErrDuplicate)
	assert.Equal(t, "maxis-7", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertOverwriteSkipsLookup(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	req := maxisRequest()
	req.Mode = port.PersistOverwrite

	mock.ExpectBegin()
	mock.ExpectExec(lockSQL).WithArgs("fp-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(maxisSQL).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("maxis-7"))
	mock.ExpectExec(logSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.Upsert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "maxis-7", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertTransientFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(lockSQL).WithArgs("fp-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lookupSQL).WithArgs("fp-1").WillReturnRows(sqlmock.NewRows([]string{"persisted_id"}))
	mock.ExpectQuery(maxisSQL).WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()

	_, err = repo.Upsert(context.Background(), maxisRequest())
	assert.ErrorIs(t, err, port.ErrTransient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertUnknownVendor(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	req := maxisRequest()
	req.Package.Invoice.Vendor = invoice.VendorDigi

	_, err = repo.Upsert(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrTransient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Lookup(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery(lookupSQL).WithArgs("fp-1").
		WillReturnRows(sqlmock.NewRows([]string{"persisted_id"}).AddRow("maxis-7"))
	mock.ExpectQuery(lookupSQL).WithArgs("fp-2").WillReturnRows(sqlmock.NewRows([]string{"persisted_id"}))

	id, found, err := repo.Lookup(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "maxis-7", id)

	_, found, err = repo.Lookup(context.Background(), "fp-2")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_EnsureSchema(t *testing.T) {
	db, mock := newMockDB(t)
	repo, err := NewRepository(db, procedures(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ingest_log")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcedureMapper(t *testing.T) {
	db, mock := newMockDB(t)
	mapper, err := NewProcedureMapper(db, map[invoice.Vendor]string{invoice.VendorCelcom: "billing.map_celcom"}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("SELECT billing.map_celcom($1)")).WithArgs("celcom-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, mapper.Map(context.Background(), "celcom-1", invoice.VendorCelcom))

	assert.Error(t, mapper.Map(context.Background(), "maxis-1", invoice.VendorMaxis))
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewProcedureMapper(db, map[invoice.Vendor]string{invoice.VendorDigi: "1bad"}, zap.NewNop())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		duplicate bool
	}{
		{"serialization", &pq.Error{Code: "40001"}, true, false},
		{"lock timeout", &pq.Error{Code: "55P03"}, true, false},
		{"connection", &pq.Error{Code: "08006"}, true, false},
		{"unique", &pq.Error{Code: "23505"}, false, true},
		{"syntax", &pq.Error{Code: "42601"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.transient, errors.Is(err, port.ErrTransient))
			assert.Equal(t, tt.duplicate, errors.Is(err, port.ErrDuplicate))
		})
	}
	assert.NoError(t, classify("op", nil))
}
