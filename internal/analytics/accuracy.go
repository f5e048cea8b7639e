package analytics

import (
	"strings"

	"github.com/kdimtricp/ecosort/internal/models"
)

// LowConfidenceThreshold is the confidence below which a result is shown as
// uncertain.
const LowConfidenceThreshold = 70.0

type AccuracyReport struct {
	Labelled int     `json:"labelled"`
	Correct  int     `json:"correct"`
	Percent  float64 `json:"percent"`
}

// Accuracy compares the system label with the operator label over the results
// that carry feedback. ok is false when none do.
func Accuracy(results []models.ResultRecord) (report AccuracyReport, ok bool) {
	for _, r := range results {
		if !r.Labelled() {
			continue
		}
		report.Labelled++
		if strings.EqualFold(r.SystemAnalysis, r.TrueClass) {
			report.Correct++
		}
	}
	if report.Labelled == 0 {
		return report, false
	}
	report.Percent = float64(report.Correct) / float64(report.Labelled) * 100
	return report, true
}

func IsLowConfidence(confidence float64) bool {
	return confidence < LowConfidenceThreshold
}
