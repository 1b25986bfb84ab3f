package analyzer

import (
	"image"

	"go-tonesense/pkg/validation"
)

// FrameChecker produces advisory quality hints for a captured frame
type FrameChecker interface {
	Check(img image.Image) []validation.QualityIssue
}

// MetricsCalculator handles frame metrics computation
type MetricsCalculator interface {
	CalculateBasicMetrics(img image.Image) metrics
	CalculateLaplacianVariance(gray *image.Gray) float64
	CalculateBrightness(gray *image.Gray) float64
}

// metrics holds internal calculation results, channels normalized to [0,1]
type metrics struct {
	avgLuminance, avgSaturation float64
	avgR, avgG, avgB            float64
}
