package batch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsieve/internal/domain"
	"docsieve/internal/port"
	"docsieve/mocks"
)

const testModel = "gemini-2.0-flash"

// itemWithPayloadSize builds a single item whose serialized request is
// exactly size bytes, by padding the prompt.
func itemWithPayloadSize(t *testing.T, size int) Item {
	t.Helper()
	req := port.BatchRequest{
		Key:      "k1",
		FileURI:  "https://files/f1",
		MIMEType: "application/pdf",
	}
	base, err := json.Marshal(req)
	require.NoError(t, err)
	require.Less(t, len(base), size)
	req.Prompt = strings.Repeat("a", size-len(base))

	padded, err := json.Marshal(req)
	require.NoError(t, err)
	require.Equal(t, size, len(padded))

	return Item{
		Key:     "k1",
		Request: req,
		Meta:    domain.BatchRequestMeta{Filename: "f1.pdf", DomainType: "invoice"},
	}
}

func TestSubmit_AtInlineLimitUsesInlineTransport(t *testing.T) {
	api := new(mocks.MockBatchAPI)
	api.On("CreateInline", mock.Anything, testModel, "job-1", mock.Anything).
		Return("batches/b1", nil)

	s := NewSubmitter(api, new(mocks.MockFileStore), testModel)
	item := itemWithPayloadSize(t, InlineByteLimit)

	job, err := s.Submit(context.Background(), domain.BatchDomainExtraction, "job-1", []Item{item}, nil)

	require.NoError(t, err)
	assert.Equal(t, "batches/b1", job.ProviderJobName)
	assert.Equal(t, []string{"k1"}, job.KeyOrder)
	api.AssertCalled(t, "CreateInline", mock.Anything, testModel, "job-1", mock.Anything)
	api.AssertNotCalled(t, "CreateFromFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_OneByteOverLimitUsesFileTransport(t *testing.T) {
	api := new(mocks.MockBatchAPI)
	files := new(mocks.MockFileStore)
	files.On("Upload", mock.Anything, mock.Anything, "application/jsonl", "job-1-input").
		Return(&port.FileRef{Name: "files/input", URI: "https://files/input"}, nil)
	api.On("CreateFromFile", mock.Anything, testModel, "job-1", "files/input").
		Return("batches/b2", nil)

	s := NewSubmitter(api, files, testModel)
	item := itemWithPayloadSize(t, InlineByteLimit+1)

	job, err := s.Submit(context.Background(), domain.BatchDomainExtraction, "job-1", []Item{item}, nil)

	require.NoError(t, err)
	assert.Equal(t, "batches/b2", job.ProviderJobName)
	assert.Nil(t, job.KeyOrder)
	api.AssertNotCalled(t, "CreateInline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// The uploaded JSONL carries one correlatable line per request.
	uploaded := files.Calls[0].Arguments.Get(1).([]byte)
	var line fileLine
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(uploaded), "\n", 2)[0]), &line))
	assert.Equal(t, "k1", line.Key)
}

func TestSubmit_DescriptorIsPendingWithMetadata(t *testing.T) {
	api := new(mocks.MockBatchAPI)
	api.On("CreateInline", mock.Anything, testModel, "job-1", mock.Anything).
		Return("batches/b1", nil)

	s := NewSubmitter(api, new(mocks.MockFileStore), testModel)

	items := []Item{
		{Key: "a", Request: port.BatchRequest{Key: "a"}, Meta: domain.BatchRequestMeta{Filename: "a.pdf"}},
		{Key: "b", Request: port.BatchRequest{Key: "b"}, Meta: domain.BatchRequestMeta{Filename: "b.pdf"}},
	}
	job, err := s.Submit(context.Background(), domain.BatchDomainExtraction, "job-1", items, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusPending, job.Status)
	assert.Equal(t, 2, job.TotalRequests)
	assert.Equal(t, []string{"a", "b"}, job.KeyOrder)
	assert.Equal(t, "a.pdf", job.RequestMetadata["a"].Filename)
	assert.Equal(t, "b.pdf", job.RequestMetadata["b"].Filename)
	assert.NotEqual(t, "", job.ID.String())
}

func TestSubmit_EmptyBatchRejected(t *testing.T) {
	s := NewSubmitter(new(mocks.MockBatchAPI), new(mocks.MockFileStore), testModel)

	_, err := s.Submit(context.Background(), domain.BatchDomainExtraction, "job-1", nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no requests")
}
