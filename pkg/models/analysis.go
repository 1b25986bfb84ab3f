package models

// AnalysisResponse is the success envelope returned by both analysis endpoints
type AnalysisResponse struct {
	Success  bool           `json:"success"`
	Analysis AnalysisResult `json:"analysis"`

	// Preview is an annotated copy of the submitted image as a data URL
	Preview string `json:"preview,omitempty"`
}

// AnalysisResult is the structured color-season record produced by the
// remote service. The client passes it through without interpreting it;
// only Season is read, to name the export.
type AnalysisResult struct {
	Season            string                 `json:"season"`
	SeasonDescription string                 `json:"season_description"`
	Undertone         Undertone              `json:"undertone"`
	Depth             Depth                  `json:"depth"`
	Contrast          Contrast               `json:"contrast"`
	SkinColor         SkinColor              `json:"skin_color"`
	Regions           map[string]RegionColor `json:"regions,omitempty"`

	BestColors  []string `json:"best_colors"`
	WorstColors []string `json:"worst_colors"`

	ClothingSuggestions  []string          `json:"clothing_suggestions,omitempty"`
	JewelryTone          string            `json:"jewelry_tone,omitempty"`
	HairColorSuggestions []string          `json:"hair_color_suggestions,omitempty"`
	MakeupPalette        map[string]string `json:"makeup_palette,omitempty"`
}

// Undertone is the warm/cool/neutral classification with its scores in [0,1]
type Undertone struct {
	Classification string  `json:"classification"`
	WarmScore      float64 `json:"warm_score"`
	CoolScore      float64 `json:"cool_score"`
	Explanation    string  `json:"explanation"`
}

// Depth is the lightness level of the skin tone
type Depth struct {
	Level       string  `json:"level"`
	LValue      float64 `json:"l_value"`
	Description string  `json:"description,omitempty"`
}

// Contrast is the chroma-based contrast level
type Contrast struct {
	Level       string  `json:"level"`
	Chroma      float64 `json:"chroma"`
	Description string  `json:"description,omitempty"`
}

// SkinColor is the overall extracted skin color
type SkinColor struct {
	Hex string     `json:"hex"`
	RGB [3]float64 `json:"rgb"`
	LAB [3]float64 `json:"lab"`
	HSV []float64  `json:"hsv,omitempty"`
}

// RegionColor is the color sampled from one facial region
type RegionColor struct {
	Hex        string     `json:"hex"`
	RGB        [3]float64 `json:"rgb"`
	PixelCount int        `json:"pixel_count"`
}

// Clone returns a deep copy so callers can hold a result without sharing
// maps or slices with the session that owns it.
func (r *AnalysisResponse) Clone() *AnalysisResponse {
	if r == nil {
		return nil
	}
	c := *r
	a := &c.Analysis
	a.BestColors = append([]string(nil), r.Analysis.BestColors...)
	a.WorstColors = append([]string(nil), r.Analysis.WorstColors...)
	a.ClothingSuggestions = append([]string(nil), r.Analysis.ClothingSuggestions...)
	a.HairColorSuggestions = append([]string(nil), r.Analysis.HairColorSuggestions...)
	a.SkinColor.HSV = append([]float64(nil), r.Analysis.SkinColor.HSV...)
	if r.Analysis.Regions != nil {
		a.Regions = make(map[string]RegionColor, len(r.Analysis.Regions))
		for k, v := range r.Analysis.Regions {
			a.Regions[k] = v
		}
	}
	if r.Analysis.MakeupPalette != nil {
		a.MakeupPalette = make(map[string]string, len(r.Analysis.MakeupPalette))
		for k, v := range r.Analysis.MakeupPalette {
			a.MakeupPalette[k] = v
		}
	}
	return &c
}
