package extract

import "math"

// PortraitConfig holds the tuned thresholds of the portrait heuristic.
type PortraitConfig struct {
	MinWidth  int `mapstructure:"min_width"`
	MinHeight int `mapstructure:"min_height"`
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
	MinBytes  int `mapstructure:"min_bytes"`

	MinRatio float64 `mapstructure:"min_ratio"`
	MaxRatio float64 `mapstructure:"max_ratio"`

	TopBand     float64 `mapstructure:"top_band"`
	TopScore    int     `mapstructure:"top_score"`
	CornerLeft  float64 `mapstructure:"corner_left"`
	CornerRight float64 `mapstructure:"corner_right"`
	CornerScore int     `mapstructure:"corner_score"`
	UpperBand   float64 `mapstructure:"upper_band"`
	UpperScore  int     `mapstructure:"upper_score"`

	PortraitRatio float64 `mapstructure:"portrait_ratio"`
	SquareRatio   float64 `mapstructure:"square_ratio"`
	RatioNear     float64 `mapstructure:"ratio_near"`
	RatioNearScr  int     `mapstructure:"ratio_near_score"`
	RatioMid      float64 `mapstructure:"ratio_mid"`
	RatioMidScr   int     `mapstructure:"ratio_mid_score"`
	RatioFar      float64 `mapstructure:"ratio_far"`
	RatioFarScr   int     `mapstructure:"ratio_far_score"`

	SizeMinBytes int `mapstructure:"size_min_bytes"`
	SizeMaxBytes int `mapstructure:"size_max_bytes"`
	SizeScore    int `mapstructure:"size_score"`

	AcceptAbove int `mapstructure:"accept_above"`
}

// DefaultPortraitConfig returns thresholds calibrated on Chinese resume
// templates.
func DefaultPortraitConfig() PortraitConfig {
	return PortraitConfig{
		MinWidth:  50,
		MinHeight: 50,
		MaxWidth:  600,
		MaxHeight: 800,
		MinBytes:  2048,

		MinRatio: 0.4,
		MaxRatio: 1.8,

		TopBand:     0.3,
		TopScore:    20,
		CornerLeft:  0.4,
		CornerRight: 0.6,
		CornerScore: 20,
		UpperBand:   0.5,
		UpperScore:  10,

		PortraitRatio: 0.75,
		SquareRatio:   1.0,
		RatioNear:     0.1,
		RatioNearScr:  40,
		RatioMid:      0.2,
		RatioMidScr:   20,
		RatioFar:      0.3,
		RatioFarScr:   10,

		SizeMinBytes: 10 * 1024,
		SizeMaxBytes: 200 * 1024,
		SizeScore:    20,

		AcceptAbove: 40,
	}
}

// Candidate is one image placed on the first page. Box edges are fractions of
// the page measured from the top-left corner.
type Candidate struct {
	Width  int
	Height int
	Bytes  int
	Left   float64
	Right  float64
	Top    float64
	Bottom float64

	Data []byte
	Ext  string
}

// Ratio is width over height.
func (c Candidate) Ratio() float64 {
	if c.Height == 0 {
		return 0
	}
	return float64(c.Width) / float64(c.Height)
}

// Admissible applies the hard filters that run before scoring.
func (cfg PortraitConfig) Admissible(c Candidate) bool {
	if c.Width < cfg.MinWidth || c.Height < cfg.MinHeight {
		return false
	}
	if c.Width > cfg.MaxWidth || c.Height > cfg.MaxHeight {
		return false
	}
	if c.Bytes < cfg.MinBytes {
		return false
	}
	ratio := c.Ratio()
	return ratio >= cfg.MinRatio && ratio <= cfg.MaxRatio
}

// admissibleShape is Admissible without the byte floor, used before an image
// has been encoded.
func (cfg PortraitConfig) admissibleShape(width, height int) bool {
	c := Candidate{Width: width, Height: height, Bytes: cfg.MinBytes}
	return cfg.Admissible(c)
}

// Score returns the additive score of an admissible candidate.
func (cfg PortraitConfig) Score(c Candidate) int {
	score := 0

	centerY := (c.Top + c.Bottom) / 2
	switch {
	case centerY < cfg.TopBand:
		score += cfg.TopScore
		if c.Left < cfg.CornerLeft || c.Right > cfg.CornerRight {
			score += cfg.CornerScore
		}
	case centerY < cfg.UpperBand:
		score += cfg.UpperScore
	}

	ratio := c.Ratio()
	dist := math.Min(math.Abs(ratio-cfg.PortraitRatio), math.Abs(ratio-cfg.SquareRatio))
	switch {
	case dist < cfg.RatioNear:
		score += cfg.RatioNearScr
	case dist < cfg.RatioMid:
		score += cfg.RatioMidScr
	case dist < cfg.RatioFar:
		score += cfg.RatioFarScr
	}

	if c.Bytes > cfg.SizeMinBytes && c.Bytes < cfg.SizeMaxBytes {
		score += cfg.SizeScore
	}
	return score
}

// SelectPortrait returns the index of the best candidate scoring above the
// acceptance threshold, or -1. Inadmissible candidates are never chosen and
// ties go to the earlier candidate.
func SelectPortrait(candidates []Candidate, cfg PortraitConfig) int {
	best, bestScore := -1, math.MinInt
	for i, c := range candidates {
		if !cfg.Admissible(c) {
			continue
		}
		score := cfg.Score(c)
		if score > cfg.AcceptAbove && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
