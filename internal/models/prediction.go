package models

import (
	"strings"
	"time"
)

// ManualClass is a ground-truth class an operator can assign during review.
type ManualClass string

const (
	ClassPaper   ManualClass = "Paper"
	ClassPlastic ManualClass = "Plastic"
	ClassOther   ManualClass = "Other"
	ClassNone    ManualClass = "None"
)

// ManualClasses lists the selectable classes in display order.
var ManualClasses = []ManualClass{ClassPaper, ClassPlastic, ClassOther, ClassNone}

// ParseManualClass matches s against the known classes ignoring case and
// surrounding whitespace, and returns the canonical spelling.
func ParseManualClass(s string) (ManualClass, bool) {
	s = strings.TrimSpace(s)
	for _, c := range ManualClasses {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// PredictionResult is one classification returned by the backend.
type PredictionResult struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	ImageName  string    `json:"image_name"`
	InsertedID string    `json:"inserted_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// HasResultID reports whether the backend stored the prediction under an id.
func (p PredictionResult) HasResultID() bool {
	return p.InsertedID != ""
}
