package domain

// ExtractionMethod identifies which path produced an extraction result.
type ExtractionMethod string

const (
	MethodHybrid         ExtractionMethod = "hybrid"
	MethodVisionFallback ExtractionMethod = "vision_fallback"
	MethodPartial        ExtractionMethod = "partial"
)

// CacheDomain names one server-side prompt cache. Each domain has a fixed
// system instruction and at most one live cache handle per process.
type CacheDomain string

const (
	CacheDomainPrimary   CacheDomain = "primary"
	CacheDomainSecondary CacheDomain = "secondary"
)

// BatchDomain identifies which domain-specific processor consumes a batch
// job's results.
type BatchDomain string

const (
	BatchDomainValidation BatchDomain = "validation"
	BatchDomainExtraction BatchDomain = "extraction"
)

// BatchJobStatus is the lifecycle of a batch job descriptor. Pending is the
// only non-terminal state.
type BatchJobStatus string

const (
	BatchJobStatusPending   BatchJobStatus = "pending"
	BatchJobStatusSucceeded BatchJobStatus = "succeeded"
	BatchJobStatusFailed    BatchJobStatus = "failed"
	BatchJobStatusCancelled BatchJobStatus = "cancelled"
	BatchJobStatusExpired   BatchJobStatus = "expired"
)

// RecordStatus is the lifecycle of an extraction record.
type RecordStatus string

const (
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusPartial   RecordStatus = "partial"
	RecordStatusFailed    RecordStatus = "failed"
)

// FileType represents the allowed source document types.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedContentTypes maps MIME content types back to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"image/jpeg":      FileTypeJPG,
	"image/png":       FileTypePNG,
}
