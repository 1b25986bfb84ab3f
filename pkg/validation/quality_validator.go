package validation

import (
	"math"
)

// QualityThresholds defines configurable thresholds for portrait frame checks
type QualityThresholds struct {
	// Sharpness
	MinLaplacianVariance float64

	// Brightness on the 0-255 gray scale
	MinBrightness float64
	MaxBrightness float64

	// Normalized luminance and saturation
	MaxLuminance  float64
	MaxSaturation float64

	// How far green or blue may exceed red before the light is tinted
	MaxColorCast float64

	// Smallest frame edge worth analyzing
	MinShortSide int
}

// DefaultQualityThresholds returns the default portrait thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 40.0,
		MinBrightness:        60.0,
		MaxBrightness:        225.0,
		MaxLuminance:         0.95,
		MaxSaturation:        0.75,
		MaxColorCast:         0.08,
		MinShortSide:         240,
	}
}

// QualityValidator turns frame metrics into advisory quality issues
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// FrameMetrics are the measurements taken from a captured frame
type FrameMetrics struct {
	Width, Height  int
	LaplacianVar   float64
	Brightness     float64
	AvgLuminance   float64
	AvgSaturation  float64
	ChannelBalance [3]float64
}

// ValidateFrame checks a portrait frame. Issues are hints for the user;
// none of them is a reason to refuse the capture.
func (qv *QualityValidator) ValidateFrame(m FrameMetrics) []QualityIssue {
	var issues []QualityIssue

	if short := minInt(m.Width, m.Height); short > 0 && short < qv.thresholds.MinShortSide {
		issues = append(issues, QualityIssue{
			Type:        "low_resolution",
			Message:     "The camera image is small. Move closer so your face fills the guide.",
			Severity:    "info",
			ActualValue: float64(short),
			Threshold:   float64(qv.thresholds.MinShortSide),
		})
	}

	if m.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Message:     "The photo is dark. Face a window or a soft light.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if m.Brightness > qv.thresholds.MaxBrightness || m.AvgLuminance > qv.thresholds.MaxLuminance {
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "The photo is very bright. Avoid direct sunlight or flash.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	if m.LaplacianVar < qv.thresholds.MinLaplacianVariance {
		issues = append(issues, QualityIssue{
			Type:        "blurry",
			Message:     "The photo looks blurry. Hold still and try again.",
			Severity:    "warning",
			ActualValue: m.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	}

	if m.AvgSaturation > qv.thresholds.MaxSaturation {
		issues = append(issues, QualityIssue{
			Type:        "oversaturated",
			Message:     "Colors look too strong. Turn off beauty filters.",
			Severity:    "warning",
			ActualValue: m.AvgSaturation,
			Threshold:   qv.thresholds.MaxSaturation,
		})
	}

	// Skin reflects more red than green or blue under neutral light.
	r, g, b := m.ChannelBalance[0], m.ChannelBalance[1], m.ChannelBalance[2]
	if cast := math.Max(g, b) - r; cast > qv.thresholds.MaxColorCast {
		issues = append(issues, QualityIssue{
			Type:        "color_cast",
			Message:     "The light has a color tint. Use white or natural light.",
			Severity:    "warning",
			ActualValue: cast,
			Threshold:   qv.thresholds.MaxColorCast,
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to plain messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
