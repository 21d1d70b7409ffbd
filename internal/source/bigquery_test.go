package source

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRawRepo struct {
	rows    []*bq.RawTransactionRow
	err     error
	periods []string
}

func (f *fakeRawRepo) QueryRawTransactions(ctx context.Context, periods []string) ([]*bq.RawTransactionRow, error) {
	f.periods = periods
	return f.rows, f.err
}

func str(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: true}
}

func TestBigQuery_Load(t *testing.T) {
	repo := &fakeRawRepo{rows: []*bq.RawTransactionRow{
		{Period: "Jan", SourceRow: 10, Identifier: str("9812345678"), InvoiceNumber: str("INV1"),
			InvoiceDate: str("2024-01-15"), ItemName: str("Sofa"), NetAmount: str("600")},
		{Period: "Jan", SourceRow: 11, Identifier: str("7123456789")},
	}}

	src := NewBigQuery(repo, "raw_transactions", []string{"Jan"})
	rows, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"Jan"}, repo.periods)
	assert.Equal(t, "9812345678", rows[0].Identifier)
	assert.Equal(t, "600", rows[0].NetAmount)
	assert.Equal(t, 0, rows[0].Seq)
	assert.Equal(t, "", rows[1].InvoiceDate)
	assert.Equal(t, 1, rows[1].Seq)
	assert.Equal(t, "bigquery:raw_transactions", src.Describe())
}

func TestBigQuery_LoadEmpty(t *testing.T) {
	_, err := NewBigQuery(&fakeRawRepo{}, "raw_transactions", nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestBigQuery_LoadError(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := NewBigQuery(&fakeRawRepo{err: boom}, "raw_transactions", nil).Load(context.Background())
	assert.ErrorIs(t, err, boom)
}
