package models

// UnlabelledClass marks a stored result that has no operator feedback yet.
const UnlabelledClass = "-"

type ResultRecord struct {
	ID             string   `json:"id"`
	ImageName      string   `json:"image_name"`
	SystemAnalysis string   `json:"systemAnalysis"`
	Confidence     *float64 `json:"confidence,omitempty"`
	TrueClass      string   `json:"trueClass"`
	Success        bool     `json:"success"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// Labelled reports whether an operator supplied a true class for the result.
func (r ResultRecord) Labelled() bool {
	return r.TrueClass != "" && r.TrueClass != UnlabelledClass
}

// ClassCounts is the confusion row the backend reports for one class.
type ClassCounts struct {
	Correct        int `json:"correct"`
	WrongAsPaper   int `json:"wrong_as_paper"`
	WrongAsPlastic int `json:"wrong_as_plastic"`
	WrongAsOther   int `json:"wrong_as_other"`
}

type ClassificationMetrics struct {
	TotalSamples   int                    `json:"total_samples"`
	Classification map[string]ClassCounts `json:"classification"`
}
