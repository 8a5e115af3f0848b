package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
)

func TestIngestMany_IsolatesFailures(t *testing.T) {
	persister := newFakePersister()
	o := newOrchestrator(t, persister, &fakeMapper{})

	docs := []invoice.RawDocument{
		maxisDoc("555000111"),
		{Filename: "maxis-broken.pdf", Content: nil},
		maxisDoc("555000333"),
	}
	results := o.IngestMany(context.Background(), docs)

	require.Len(t, results, 3)
	assert.Equal(t, "bill-555000111.txt", results[0].Filename)
	assert.Equal(t, "maxis-broken.pdf", results[1].Filename)
	assert.Equal(t, "bill-555000333.txt", results[2].Filename)

	assert.Equal(t, OutcomeDone, results[0].Outcome)
	assert.Equal(t, OutcomeDone, results[2].Outcome)

	broken := results[1]
	assert.Equal(t, OutcomeFailed, broken.Outcome)
	assert.Equal(t, invoice.VendorMaxis, broken.Vendor)
	assert.Equal(t, workflow.StateExtracted, broken.FailedStage)
	assert.ErrorIs(t, broken.Error, ingesterr.ErrParse)

	assert.Equal(t, 2, persister.Writes())

	batchID := results[0].BatchID
	assert.NotEmpty(t, batchID)
	for _, r := range results {
		assert.Equal(t, batchID, r.BatchID)
	}

	assert.Equal(t, Summary{Total: 3, Done: 2, Failed: 1}, Summarize(results))
}

func TestIngestMany_PreservesOrderUnderConcurrency(t *testing.T) {
	o := newOrchestrator(t, newFakePersister(), nil, func(c *Config) { c.Workers = 3 })

	var docs []invoice.RawDocument
	for i := 0; i < 12; i++ {
		docs = append(docs, maxisDoc(fmt.Sprintf("7000000%02d", i)))
	}
	results := o.IngestMany(context.Background(), docs)

	require.Len(t, results, len(docs))
	for i, r := range results {
		assert.Equal(t, docs[i].Filename, r.Filename)
		assert.Equal(t, OutcomeDone, r.Outcome)
		assert.Equal(t, fmt.Sprintf("7000000%02d", i), r.Package.Invoice.InvoiceNumber)
	}
}

func TestIngestMany_DuplicatesWithinBatch(t *testing.T) {
	persister := newFakePersister()
	o := newOrchestrator(t, persister, nil, func(c *Config) { c.Workers = 1 })

	doc := maxisDoc("555000111")
	results := o.IngestMany(context.Background(), []invoice.RawDocument{doc, doc})

	assert.Equal(t, OutcomeDone, results[0].Outcome)
	assert.Equal(t, OutcomeDuplicate, results[1].Outcome)
	assert.Equal(t, 1, persister.Writes())
}

func TestIngestMany_Empty(t *testing.T) {
	o := newOrchestrator(t, newFakePersister(), nil)
	assert.Empty(t, o.IngestMany(context.Background(), nil))
}
