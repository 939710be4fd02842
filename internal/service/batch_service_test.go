package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsieve/internal/domain"
	"docsieve/internal/port"
	"docsieve/mocks"
)

func newBatchFixture() (*mocks.MockBatchJobRepo, *mocks.MockExtractionRecordRepo, *mocks.MockObjectStorage, *mocks.MockBatchAPI, *mocks.MockFileStore, BatchService) {
	jobs := new(mocks.MockBatchJobRepo)
	records := new(mocks.MockExtractionRecordRepo)
	storage := new(mocks.MockObjectStorage)
	api := new(mocks.MockBatchAPI)
	files := new(mocks.MockFileStore)
	svc := NewBatchService(jobs, records, storage, api, files, testBucket, testModel)
	return jobs, records, storage, api, files, svc
}

func TestSubmitBatch_BuildsAndPersistsDescriptor(t *testing.T) {
	jobs, _, _, api, files, svc := newBatchFixture()

	files.On("Upload", mock.Anything, []byte("%PDF"), "application/pdf", "a.pdf").
		Return(&port.FileRef{Name: "files/a", URI: "https://files/a", MIMEType: "application/pdf"}, nil)
	api.On("CreateInline", mock.Anything, testModel, "nightly", mock.Anything).
		Return("batches/b1", nil)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.ProviderJobName == "batches/b1" &&
			j.Domain == domain.BatchDomainExtraction &&
			j.Status == domain.BatchJobStatusPending &&
			j.TotalRequests == 1
	})).Return(nil)

	job, err := svc.SubmitBatch(context.Background(), &SubmitBatchInput{
		Domain:      domain.BatchDomainExtraction,
		DisplayName: "nightly",
		Documents: []BatchDocumentInput{
			{Key: "a", Filename: "a.pdf", ContentType: "application/pdf", DocumentType: "invoice", Document: []byte("%PDF")},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, job.KeyOrder)
	assert.Equal(t, "a.pdf", job.RequestMetadata["a"].Filename)
	jobs.AssertExpectations(t)
}

func TestSubmitBatch_DownloadsDocumentsBySourceKey(t *testing.T) {
	jobs, _, storage, api, files, svc := newBatchFixture()

	storage.On("Download", mock.Anything, testBucket, "uploads/a.pdf").
		Return([]byte("%PDF"), nil)
	files.On("Upload", mock.Anything, []byte("%PDF"), "application/pdf", "a.pdf").
		Return(&port.FileRef{Name: "files/a", URI: "https://files/a"}, nil)
	api.On("CreateInline", mock.Anything, testModel, "nightly", mock.Anything).
		Return("batches/b1", nil)
	jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.SubmitBatch(context.Background(), &SubmitBatchInput{
		Domain:      domain.BatchDomainExtraction,
		DisplayName: "nightly",
		Documents: []BatchDocumentInput{
			{Key: "a", Filename: "a.pdf", ContentType: "application/pdf", SourceKey: "uploads/a.pdf"},
		},
	})

	require.NoError(t, err)
	storage.AssertCalled(t, "Download", mock.Anything, testBucket, "uploads/a.pdf")
}

func TestSubmitBatch_EmptyBatchRejected(t *testing.T) {
	_, _, _, _, _, svc := newBatchFixture()

	_, err := svc.SubmitBatch(context.Background(), &SubmitBatchInput{
		Domain:      domain.BatchDomainExtraction,
		DisplayName: "nightly",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no documents")
}

func TestPollJob_TerminalJobRejected(t *testing.T) {
	jobs, _, _, _, _, svc := newBatchFixture()

	id := uuid.New()
	jobs.On("GetByID", mock.Anything, id).
		Return(&domain.BatchJob{ID: id, Status: domain.BatchJobStatusSucceeded}, nil)

	_, err := svc.PollJob(context.Background(), id, time.Minute, time.Second)

	require.ErrorIs(t, err, domain.ErrBatchJobTerminal)
}

func TestProcessExtractionResults_CreatesRecordsAndFinalizes(t *testing.T) {
	jobs, records, _, _, _, svc := newBatchFixture()

	job := &domain.BatchJob{
		ID:     uuid.New(),
		Domain: domain.BatchDomainExtraction,
		Model:  testModel,
		Status: domain.BatchJobStatusPending,
		RequestMetadata: map[string]domain.BatchRequestMeta{
			"a": {Filename: "a.pdf", DomainType: "invoice"},
			"b": {Filename: "b.pdf", DomainType: "invoice"},
			"c": {Filename: "c.pdf", DomainType: "invoice"},
		},
	}

	records.On("ListByBatchJob", mock.Anything, job.ID).
		Return([]domain.ExtractionRecord{}, nil)
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.Filename == "a.pdf" && r.Status == domain.RecordStatusCompleted &&
			r.Method == domain.MethodVisionFallback && r.BatchJobID != nil &&
			*r.BatchJobID == job.ID && r.BatchKey == "a"
	})).Return(nil).Once()
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.Filename == "b.pdf" && r.Status == domain.RecordStatusFailed &&
			r.ErrorText == "quota exceeded"
	})).Return(nil).Once()
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.Filename == "c.pdf" && r.Status == domain.RecordStatusFailed &&
			r.ErrorText == "model returned malformed JSON"
	})).Return(nil).Once()

	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.ID == job.ID && j.Status == domain.BatchJobStatusSucceeded &&
			j.CompletedRequests == 1 && j.FailedRequests == 2 && j.CompletedAt != nil
	})).Return(nil)

	err := svc.ProcessExtractionResults(context.Background(), job, []domain.BatchResponseItem{
		{Key: "a", ResponseText: `{"title":"A"}`},
		{Key: "b", Error: "quota exceeded"},
		{Key: "c", ResponseText: `{"broken":`},
	})

	require.NoError(t, err)
	records.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestProcessExtractionResults_ReplayDoesNotDuplicateRecords(t *testing.T) {
	jobs, records, _, _, _, svc := newBatchFixture()

	job := &domain.BatchJob{
		ID:     uuid.New(),
		Domain: domain.BatchDomainExtraction,
		Model:  testModel,
		Status: domain.BatchJobStatusPending,
		RequestMetadata: map[string]domain.BatchRequestMeta{
			"a": {Filename: "a.pdf", DomainType: "invoice"},
			"b": {Filename: "b.pdf", DomainType: "invoice"},
		},
	}
	items := []domain.BatchResponseItem{
		{Key: "a", ResponseText: `{"title":"A"}`},
		{Key: "b", ResponseText: `{"title":"B"}`},
	}

	// First pass: a.pdf persists, b.pdf hits a store outage, the job stays
	// pending and the sweep replays the whole processor later.
	records.On("ListByBatchJob", mock.Anything, job.ID).
		Return([]domain.ExtractionRecord{}, nil).Once()
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.BatchKey == "a"
	})).Return(nil).Once()
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.BatchKey == "b"
	})).Return(errors.New("db down")).Once()

	err := svc.ProcessExtractionResults(context.Background(), job, items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "b"`)

	// Second pass: the surviving a.pdf record is listed and skipped, only
	// b.pdf is created, and the final counters still cover both items.
	records.On("ListByBatchJob", mock.Anything, job.ID).
		Return([]domain.ExtractionRecord{
			{ID: uuid.New(), Filename: "a.pdf", BatchKey: "a", Status: domain.RecordStatusCompleted, BatchJobID: &job.ID},
		}, nil).Once()
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.BatchKey == "b"
	})).Return(nil).Once()
	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.ID == job.ID && j.Status == domain.BatchJobStatusSucceeded &&
			j.CompletedRequests == 2 && j.FailedRequests == 0
	})).Return(nil).Once()

	err = svc.ProcessExtractionResults(context.Background(), job, items)

	require.NoError(t, err)
	records.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestProcessValidationResults_FlagsInvalidSourceRecords(t *testing.T) {
	jobs, records, _, _, _, svc := newBatchFixture()

	srcID := uuid.New()
	job := &domain.BatchJob{
		ID:     uuid.New(),
		Domain: domain.BatchDomainValidation,
		Model:  testModel,
		RequestMetadata: map[string]domain.BatchRequestMeta{
			"a": {Filename: "a.pdf", SourceID: &srcID},
			"b": {Filename: "b.pdf"},
		},
	}

	records.On("GetByID", mock.Anything, srcID).
		Return(&domain.ExtractionRecord{ID: srcID, Status: domain.RecordStatusCompleted}, nil)
	records.On("Update", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.ID == srcID && r.Status == domain.RecordStatusPartial &&
			r.ErrorText != ""
	})).Return(nil)

	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.CompletedRequests == 2 && j.FailedRequests == 0
	})).Return(nil)

	err := svc.ProcessValidationResults(context.Background(), job, []domain.BatchResponseItem{
		{Key: "a", ResponseText: `{"valid":false,"issues":[{"field":"total","reason":"does not match line items"}]}`},
		{Key: "b", ResponseText: `{"valid":true,"issues":[]}`},
	})

	require.NoError(t, err)
	records.AssertExpectations(t)
}

func TestProcessValidationResults_MalformedVerdictCountsAsFailed(t *testing.T) {
	jobs, records, _, _, _, svc := newBatchFixture()

	job := &domain.BatchJob{
		ID:              uuid.New(),
		Domain:          domain.BatchDomainValidation,
		RequestMetadata: map[string]domain.BatchRequestMeta{"a": {Filename: "a.pdf"}},
	}

	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.CompletedRequests == 0 && j.FailedRequests == 1
	})).Return(nil)

	err := svc.ProcessValidationResults(context.Background(), job, []domain.BatchResponseItem{
		{Key: "a", ResponseText: "not json"},
	})

	require.NoError(t, err)
	records.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestFinalize_PropagatesCountsToSourceJob(t *testing.T) {
	jobs, records, _, _, _, svc := newBatchFixture()

	parentID := uuid.New()
	parent := &domain.BatchJob{
		ID:                parentID,
		Status:            domain.BatchJobStatusSucceeded,
		CompletedRequests: 5,
		FailedRequests:    1,
	}
	job := &domain.BatchJob{
		ID:              uuid.New(),
		Domain:          domain.BatchDomainExtraction,
		Model:           testModel,
		SourceJobID:     &parentID,
		RequestMetadata: map[string]domain.BatchRequestMeta{"a": {Filename: "a.pdf"}},
	}

	records.On("ListByBatchJob", mock.Anything, job.ID).
		Return([]domain.ExtractionRecord{}, nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.ID == job.ID
	})).Return(nil).Once()
	jobs.On("GetByID", mock.Anything, parentID).Return(parent, nil)
	jobs.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(j *domain.BatchJob) bool {
		return j.ID == parentID && j.CompletedRequests == 6 && j.FailedRequests == 1
	})).Return(nil).Once()

	err := svc.ProcessExtractionResults(context.Background(), job, []domain.BatchResponseItem{
		{Key: "a", ResponseText: `{"title":"A"}`},
	})

	require.NoError(t, err)
	jobs.AssertExpectations(t)
}

func TestProcessors_CoversBothDomains(t *testing.T) {
	_, _, _, _, _, svc := newBatchFixture()

	procs := svc.Processors()

	assert.Contains(t, procs, domain.BatchDomainExtraction)
	assert.Contains(t, procs, domain.BatchDomainValidation)
}
