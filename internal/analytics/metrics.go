package analytics

import (
	"github.com/kdimtricp/ecosort/internal/models"
)

// Slice is one segment of a per-class pie chart.
type Slice struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type ClassSummary struct {
	Class    string   `json:"class"`
	Feedback int      `json:"feedback"`
	Correct  int      `json:"correct"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Slices   []Slice  `json:"slices"`
}

type Summary struct {
	TotalSamples    int            `json:"total_samples"`
	WithFeedback    int            `json:"with_feedback"`
	WithoutFeedback int            `json:"without_feedback"`
	Correct         int            `json:"correct"`
	Incorrect       int            `json:"incorrect"`
	Classes         []ClassSummary `json:"classes"`
}

// summaryClasses are the metrics keys rendered, in display order.
var summaryClasses = []string{"paper", "plastic", "other"}

// Summarize turns the backend's confusion counts into the totals and per-class
// breakdown shown on the metrics page.
func Summarize(m models.ClassificationMetrics) Summary {
	s := Summary{TotalSamples: m.TotalSamples}

	for _, name := range summaryClasses {
		counts := m.Classification[name]
		wrong := counts.WrongAsPaper + counts.WrongAsPlastic + counts.WrongAsOther

		cs := ClassSummary{
			Class:    name,
			Feedback: counts.Correct + wrong,
			Correct:  counts.Correct,
			Slices:   slicesFor(name, counts),
		}
		if cs.Feedback > 0 {
			acc := float64(counts.Correct) / float64(cs.Feedback) * 100
			cs.Accuracy = &acc
		}

		s.WithFeedback += cs.Feedback
		s.Correct += counts.Correct
		s.Incorrect += wrong
		s.Classes = append(s.Classes, cs)
	}

	s.WithoutFeedback = s.TotalSamples - s.WithFeedback
	if s.WithoutFeedback < 0 {
		s.WithoutFeedback = 0
	}
	return s
}

func slicesFor(class string, c models.ClassCounts) []Slice {
	switch class {
	case "paper":
		return []Slice{
			{Label: "Correct", Count: c.Correct},
			{Label: "Wrong as Plastic", Count: c.WrongAsPlastic},
			{Label: "Wrong as Other", Count: c.WrongAsOther},
		}
	case "plastic":
		return []Slice{
			{Label: "Correct", Count: c.Correct},
			{Label: "Wrong as Paper", Count: c.WrongAsPaper},
			{Label: "Wrong as Other", Count: c.WrongAsOther},
		}
	default:
		return []Slice{
			{Label: "Correct", Count: c.Correct},
			{Label: "Wrong as Paper", Count: c.WrongAsPaper},
			{Label: "Wrong as Plastic", Count: c.WrongAsPlastic},
		}
	}
}
