package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kdimtricp/ecosort/internal/models"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.Code)
}

// Temporary reports whether repeating the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}

func newStatusError(op string, code int, body []byte) *StatusError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &StatusError{Op: op, Code: code, Message: msg}
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Set stays false for null.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid confidence %q: %w", raw, err)
	}
	*f = flexFloat{Value: v, Set: true}
	return nil
}

type evaluateResponse struct {
	Label      string     `json:"label"`
	Confidence flexFloat  `json:"confidence"`
	ImageName  string     `json:"image_name"`
	InsertedID flexString `json:"inserted_id"`
}

func (r evaluateResponse) toModel() (*models.PredictionResult, error) {
	if !r.Confidence.Set {
		return nil, fmt.Errorf("prediction has no confidence")
	}
	return &models.PredictionResult{
		Label:      r.Label,
		Confidence: r.Confidence.Value,
		ImageName:  r.ImageName,
		InsertedID: string(r.InsertedID),
	}, nil
}

type resultResponse struct {
	ID             flexString `json:"id"`
	ImageName      string     `json:"image_name"`
	SystemAnalysis string     `json:"systemAnalysis"`
	Confidence     flexFloat  `json:"confidence"`
	TrueClass      string     `json:"trueClass"`
	Success        bool       `json:"success"`
	Timestamp      string     `json:"timestamp"`

	// Single-result lookups use the storage column names.
	ImageClass           string `json:"image_class"`
	SystemAnalysisColumn string `json:"system_analysis"`
}

// sampleResponse wraps GET /dashboard/results/{id}.
type sampleResponse struct {
	Sample *resultResponse `json:"sample"`
}

func (r resultResponse) toModel() models.ResultRecord {
	rec := models.ResultRecord{
		ID:             string(r.ID),
		ImageName:      r.ImageName,
		SystemAnalysis: r.SystemAnalysis,
		TrueClass:      r.TrueClass,
		Success:        r.Success,
		Timestamp:      r.Timestamp,
	}
	if rec.SystemAnalysis == "" {
		rec.SystemAnalysis = r.SystemAnalysisColumn
	}
	if rec.TrueClass == "" {
		rec.TrueClass = r.ImageClass
	}
	if r.Confidence.Set {
		c := r.Confidence.Value
		rec.Confidence = &c
	}
	if rec.TrueClass == "" {
		rec.TrueClass = models.UnlabelledClass
	}
	return rec
}

type correctionRequest struct {
	TrueClass      string `json:"trueClass"`
	SystemAnalysis string `json:"systemAnalysis"`
	Success        *bool  `json:"success,omitempty"`
}

type trueClassRequest struct {
	TrueClass string `json:"trueClass"`
}
