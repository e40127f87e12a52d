package analysis

// Labels produced by the ultrasound classifier.
const (
	LabelInfected    = "infected"
	LabelNonInfected = "noninfected"
)

// Prediction is the classifier verdict after the confidence threshold has been applied.
type Prediction struct {
	Label          string  `json:"label"`
	RawLabel       string  `json:"rawLabel"`
	Probability    float64 `json:"probability"`
	Confident      bool    `json:"confident"`
	GradcamHeatmap string  `json:"gradcamHeatmap,omitempty"`
}

// Opposite returns the other binary label. Anything that is not
// LabelInfected counts as non-infected and flips to LabelInfected.
func Opposite(label string) string {
	if label == LabelInfected {
		return LabelNonInfected
	}
	return LabelInfected
}
