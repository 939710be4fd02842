package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsieve/internal/domain"
	"docsieve/internal/extract"
	"docsieve/internal/inference"
	"docsieve/internal/port"
	"docsieve/mocks"
)

const (
	testModel  = "gemini-2.0-flash"
	testBucket = "docsieve-test"
)

func testPolicy() extract.RetryPolicy {
	p := extract.DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxJitter = 0
	return p
}

func testExtractor(inf port.InferenceClient, files port.FileStore) *extract.Client {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("caches/c1", nil)
	cache.On("Probe", mock.Anything, mock.Anything).Return(nil)
	return extract.NewClient(inf, files, extract.NewCacheManager(cache, testModel), testPolicy(), testModel)
}

// archivingStorage accepts any Upload so inline submissions can be archived.
func archivingStorage() *mocks.MockObjectStorage {
	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.Anything).
		Return(&port.StoreOutput{Location: "s3://test"}, nil)
	return storage
}

func goodStructure() *domain.DocumentStructure {
	return &domain.DocumentStructure{
		Markdown:     "## Page 1\n\nInvoice 42",
		ElementCount: 20,
		QualityScore: 0.9,
	}
}

func TestExtractDocument_CompletedRecord(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, []byte("%PDF"), "application/pdf").
		Return(goodStructure(), nil)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(&port.GenerateOutput{Text: `{"title":"Invoice 42"}`, TotalTokens: 100}, nil)

	svc := NewExtractionService(records, archivingStorage(), parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	rec, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename:     "invoice.pdf",
		DocumentType: "invoice",
		ContentType:  "application/pdf",
		Document:     []byte("%PDF"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusCompleted, rec.Status)
	assert.Equal(t, domain.MethodHybrid, rec.Method)
	assert.Equal(t, 1, rec.Attempts)
	assert.NotEmpty(t, rec.Data)
	records.AssertNumberOfCalls(t, "Create", 1)
}

func TestExtractDocument_DownloadsWhenOnlySourceKeyGiven(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	storage := new(mocks.MockObjectStorage)
	storage.On("Download", mock.Anything, testBucket, "uploads/invoice.pdf").
		Return([]byte("%PDF"), nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, []byte("%PDF"), "application/pdf").
		Return(goodStructure(), nil)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(&port.GenerateOutput{Text: `{"title":"Invoice 42"}`}, nil)

	svc := NewExtractionService(records, storage, parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	rec, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename:     "invoice.pdf",
		DocumentType: "invoice",
		ContentType:  "application/pdf",
		SourceKey:    "uploads/invoice.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusCompleted, rec.Status)
	storage.AssertCalled(t, "Download", mock.Anything, testBucket, "uploads/invoice.pdf")
}

func TestExtractDocument_DownloadFailure(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	storage.On("Download", mock.Anything, testBucket, "uploads/missing.pdf").
		Return(nil, errors.New("no such key"))

	svc := NewExtractionService(new(mocks.MockExtractionRecordRepo), storage,
		new(mocks.MockStructuralParser),
		testExtractor(new(mocks.MockInferenceClient), new(mocks.MockFileStore)), testBucket)

	_, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename:  "missing.pdf",
		SourceKey: "uploads/missing.pdf",
	})

	require.ErrorIs(t, err, domain.ErrDownloadFailed)
}

func TestExtractDocument_StructuralFailurePersistsFailedRecord(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.Status == domain.RecordStatusFailed && r.ErrorText != ""
	})).Return(nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrUnprocessable)

	svc := NewExtractionService(records, archivingStorage(), parser,
		testExtractor(new(mocks.MockInferenceClient), new(mocks.MockFileStore)), testBucket)

	rec, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename: "broken.pdf",
		Document: []byte("garbage"),
	})

	require.ErrorIs(t, err, domain.ErrUnprocessable)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RecordStatusFailed, rec.Status)
	records.AssertExpectations(t)
}

func TestExtractDocument_PermanentProviderFailureStoresPartial(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, mock.Anything, mock.Anything).
		Return(goodStructure(), nil)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(nil, inference.NewProviderError(422, "unprocessable prompt", nil))

	svc := NewExtractionService(records, archivingStorage(), parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	rec, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename:     "invoice.pdf",
		DocumentType: "invoice",
		ContentType:  "application/pdf",
		Document:     []byte("%PDF"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusPartial, rec.Status)
	assert.Equal(t, domain.MethodPartial, rec.Method)
	assert.Contains(t, rec.ErrorText, "unprocessable prompt")
}

func TestExtractDocument_SchemaViolationDowngradesToPartial(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, mock.Anything, mock.Anything).
		Return(goodStructure(), nil)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(&port.GenerateOutput{Text: `{"title":"Invoice 42"}`}, nil)

	svc := NewExtractionService(records, archivingStorage(), parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	rec, err := svc.ExtractDocument(context.Background(), &ExtractDocumentInput{
		Filename:     "invoice.pdf",
		DocumentType: "invoice",
		ContentType:  "application/pdf",
		Document:     []byte("%PDF"),
		Schema:       json.RawMessage(`{"type":"object","required":["total"]}`),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusPartial, rec.Status)
	assert.NotEmpty(t, rec.ErrorText)
}

func TestExtractAll_IsolatesPerDocumentFailures(t *testing.T) {
	records := new(mocks.MockExtractionRecordRepo)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, []byte("good"), mock.Anything).
		Return(goodStructure(), nil)
	parser.On("ParseBytes", mock.Anything, []byte("bad"), mock.Anything).
		Return(nil, domain.ErrUnprocessable)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(&port.GenerateOutput{Text: `{"title":"ok"}`}, nil)

	svc := NewExtractionService(records, archivingStorage(), parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	outcomes := svc.ExtractAll(context.Background(), []*ExtractDocumentInput{
		{Filename: "a.pdf", Document: []byte("good"), ContentType: "application/pdf"},
		{Filename: "b.pdf", Document: []byte("bad"), ContentType: "application/pdf"},
	}, 2)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "a.pdf", outcomes[0].Filename)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, domain.RecordStatusCompleted, outcomes[0].Record.Status)
	assert.Equal(t, "b.pdf", outcomes[1].Filename)
	assert.Error(t, outcomes[1].Err)
}

func TestRetryExtraction_BumpsAttemptsAndUpdates(t *testing.T) {
	id := uuid.New()
	stored := &domain.ExtractionRecord{
		ID:           id,
		Filename:     "invoice.pdf",
		DocumentType: "invoice",
		SourceKey:    "uploads/invoice.pdf",
		Status:       domain.RecordStatusPartial,
		Attempts:     1,
	}

	records := new(mocks.MockExtractionRecordRepo)
	records.On("GetByID", mock.Anything, id).Return(stored, nil)
	records.On("IncrementAttempts", mock.Anything, id).Return(nil)
	records.On("Update", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRecord) bool {
		return r.ID == id && r.Status == domain.RecordStatusCompleted && r.Attempts == 2
	})).Return(nil)

	storage := new(mocks.MockObjectStorage)
	storage.On("Download", mock.Anything, testBucket, "uploads/invoice.pdf").
		Return([]byte("%PDF"), nil)

	parser := new(mocks.MockStructuralParser)
	parser.On("ParseBytes", mock.Anything, []byte("%PDF"), "application/pdf").
		Return(goodStructure(), nil)

	inf := new(mocks.MockInferenceClient)
	inf.On("Generate", mock.Anything, mock.Anything).
		Return(&port.GenerateOutput{Text: `{"title":"Invoice 42"}`}, nil)

	svc := NewExtractionService(records, storage, parser,
		testExtractor(inf, new(mocks.MockFileStore)), testBucket)

	rec, err := svc.RetryExtraction(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusCompleted, rec.Status)
	assert.Empty(t, rec.ErrorText)
	records.AssertExpectations(t)
}

func TestRetryExtraction_NoSourceKey(t *testing.T) {
	id := uuid.New()
	records := new(mocks.MockExtractionRecordRepo)
	records.On("GetByID", mock.Anything, id).
		Return(&domain.ExtractionRecord{ID: id, Filename: "inline.pdf"}, nil)

	svc := NewExtractionService(records, new(mocks.MockObjectStorage),
		new(mocks.MockStructuralParser),
		testExtractor(new(mocks.MockInferenceClient), new(mocks.MockFileStore)), testBucket)

	_, err := svc.RetryExtraction(context.Background(), id)

	require.ErrorIs(t, err, domain.ErrUnprocessable)
}

func TestPresignSource_ReturnsTimeLimitedURL(t *testing.T) {
	id := uuid.New()
	records := new(mocks.MockExtractionRecordRepo)
	records.On("GetByID", mock.Anything, id).
		Return(&domain.ExtractionRecord{ID: id, SourceKey: "uploads/a.pdf"}, nil)

	storage := new(mocks.MockObjectStorage)
	storage.On("PresignDownload", mock.Anything, testBucket, "uploads/a.pdf", int64(900)).
		Return("https://signed.example/a.pdf", nil)

	svc := NewExtractionService(records, storage, new(mocks.MockStructuralParser),
		testExtractor(new(mocks.MockInferenceClient), new(mocks.MockFileStore)), testBucket)

	url, err := svc.PresignSource(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/a.pdf", url)
}

func TestPresignSource_NoArchivedSource(t *testing.T) {
	id := uuid.New()
	records := new(mocks.MockExtractionRecordRepo)
	records.On("GetByID", mock.Anything, id).
		Return(&domain.ExtractionRecord{ID: id}, nil)

	svc := NewExtractionService(records, new(mocks.MockObjectStorage),
		new(mocks.MockStructuralParser),
		testExtractor(new(mocks.MockInferenceClient), new(mocks.MockFileStore)), testBucket)

	_, err := svc.PresignSource(context.Background(), id)

	require.ErrorIs(t, err, domain.ErrUnprocessable)
}
