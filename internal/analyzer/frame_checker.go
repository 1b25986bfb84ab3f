package analyzer

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"

	"go-tonesense/pkg/validation"
)

// checkSize is the longest edge frames are reduced to before measuring
const checkSize = 320

type frameChecker struct {
	calc      MetricsCalculator
	validator *validation.QualityValidator
}

// NewFrameChecker creates a checker with the default portrait thresholds
func NewFrameChecker() FrameChecker {
	return NewFrameCheckerWithValidator(validation.NewQualityValidator())
}

// NewFrameCheckerWithValidator creates a checker using custom thresholds
func NewFrameCheckerWithValidator(v *validation.QualityValidator) FrameChecker {
	return &frameChecker{
		calc:      NewMetricsCalculator(),
		validator: v,
	}
}

// Check measures img and returns the quality hints for it. Resolution is
// judged on the original frame; everything else on a downscaled copy.
func (fc *frameChecker) Check(img image.Image) []validation.QualityIssue {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	return fc.validator.ValidateFrame(fc.Measure(img))
}

// Measure computes the frame metrics of img
func (fc *frameChecker) Measure(img image.Image) validation.FrameMetrics {
	bounds := img.Bounds()

	small := img
	if bounds.Dx() > checkSize || bounds.Dy() > checkSize {
		small = resize.Thumbnail(checkSize, checkSize, img, resize.Lanczos3)
	}

	gray := image.NewGray(small.Bounds())
	draw.Draw(gray, gray.Bounds(), small, small.Bounds().Min, draw.Src)

	basic := fc.calc.CalculateBasicMetrics(small)

	return validation.FrameMetrics{
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		LaplacianVar:   fc.calc.CalculateLaplacianVariance(gray),
		Brightness:     fc.calc.CalculateBrightness(gray),
		AvgLuminance:   basic.avgLuminance,
		AvgSaturation:  basic.avgSaturation,
		ChannelBalance: [3]float64{basic.avgR, basic.avgG, basic.avgB},
	}
}
