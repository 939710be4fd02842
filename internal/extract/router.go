// Package extract implements the synchronous extraction core: quality
// routing, prompt-cache management, classification-aware retry, and the
// client that ties them around the inference service.
package extract

import "docsieve/internal/domain"

// qualityThreshold is the minimum structural quality score for the hybrid
// path. Documents below it go through the vision fallback.
const qualityThreshold = 0.7

// RouteDecision is the synchronous extraction path chosen for a document.
type RouteDecision string

const (
	RouteHybrid         RouteDecision = "hybrid"
	RouteVisionFallback RouteDecision = "vision_fallback"
)

// Route chooses the extraction path from the structural pre-pass quality
// score. Pure function, evaluated exactly once per document.
func Route(structure *domain.DocumentStructure) RouteDecision {
	if structure.QualityScore < qualityThreshold {
		return RouteVisionFallback
	}
	return RouteHybrid
}
