package videos

import "context"

// Analyzer produces a posture analysis for an uploaded running video.
type Analyzer interface {
	Analyze(ctx context.Context, video *Video) (*AnalysisResult, error)
}

// StubAnalyzer returns a fixed analysis until a real pose estimation
// pipeline is plugged in.
type StubAnalyzer struct{}

func (StubAnalyzer) Analyze(_ context.Context, _ *Video) (*AnalysisResult, error) {
	return &AnalysisResult{
		Score:         85,
		KneeAlignment: "good",
		FootStrike:    "midfoot",
		ArmSwing:      "optimal",
		Posture:       "upright",
		Suggestions: []string{
			"保持当前姿势",
			"注意保持身体直立",
			"适当增加步频",
		},
		KeyPoints: []any{},
	}, nil
}
