package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvaluateDecoding(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectLabel string
		expectConf  float64
		expectID    string
		expectErr   bool
	}{
		{
			name:        "numeric fields",
			body:        `{"label":"Paper","confidence":92.5,"image_name":"a.jpg","inserted_id":"abc"}`,
			expectLabel: "Paper",
			expectConf:  92.5,
			expectID:    "abc",
		},
		{
			name:        "confidence as string and numeric id",
			body:        `{"label":"Plastic","confidence":"40.00","image_name":"b.jpg","inserted_id":17}`,
			expectLabel: "Plastic",
			expectConf:  40,
			expectID:    "17",
		},
		{
			name:        "null id",
			body:        `{"label":"Track","confidence":12,"image_name":"c.jpg","inserted_id":null}`,
			expectLabel: "Track",
			expectConf:  12,
			expectID:    "",
		},
		{
			name:      "missing confidence",
			body:      `{"label":"Paper","image_name":"d.jpg"}`,
			expectErr: true,
		},
		{
			name:      "garbage confidence",
			body:      `{"label":"Paper","confidence":"high"}`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/home/evaluate" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			result, err := NewClient(srv.URL).Evaluate(context.Background())
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Label != tt.expectLabel {
				t.Errorf("expected label %q, got %q", tt.expectLabel, result.Label)
			}
			if result.Confidence != tt.expectConf {
				t.Errorf("expected confidence %v, got %v", tt.expectConf, result.Confidence)
			}
			if result.InsertedID != tt.expectID {
				t.Errorf("expected inserted id %q, got %q", tt.expectID, result.InsertedID)
			}
		})
	}
}

func TestStatusErrorCarriesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"camera not ready"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Evaluate(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("expected code 500, got %d", statusErr.Code)
	}
	if statusErr.Message != "camera not ready" {
		t.Errorf("expected backend message, got %q", statusErr.Message)
	}
}

func TestEvaluateWithoutRetriesCallsOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Evaluate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestEvaluateRetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"label":"Other","confidence":88,"image_name":"x.jpg","inserted_id":"9"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithEvaluateRetries(3, time.Millisecond))
	result, err := client.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Label != "Other" {
		t.Errorf("expected label Other, got %q", result.Label)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestEvaluateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithEvaluateRetries(3, time.Millisecond))
	if _, err := client.Evaluate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestManualSaveCallsSendExpectedRequests(t *testing.T) {
	type seen struct {
		method string
		path   string
		body   map[string]any
	}
	var (
		mu       sync.Mutex
		requests []seen
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(data) > 0 {
			json.Unmarshal(data, &body)
		}
		mu.Lock()
		requests = append(requests, seen{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()
	if err := client.SaveCorrection(ctx, "xyz", "Other", "Plastic"); err != nil {
		t.Fatalf("SaveCorrection: %v", err)
	}
	if err := client.ServoPush(ctx, "Other"); err != nil {
		t.Fatalf("ServoPush: %v", err)
	}
	if err := client.CopyUncertain(ctx, "xyz", "Other"); err != nil {
		t.Fatalf("CopyUncertain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests))
	}
	if requests[0].method != http.MethodPut || requests[0].path != "/dashboard/results/xyz" {
		t.Errorf("unexpected correction request %s %s", requests[0].method, requests[0].path)
	}
	if requests[0].body["trueClass"] != "Other" || requests[0].body["systemAnalysis"] != "Plastic" {
		t.Errorf("unexpected correction body %v", requests[0].body)
	}
	if _, ok := requests[0].body["success"]; ok {
		t.Error("correction body should not carry success")
	}
	if requests[1].path != "/home/servo_push" || requests[1].body["trueClass"] != "Other" {
		t.Errorf("unexpected servo request %s %v", requests[1].path, requests[1].body)
	}
	if requests[2].path != "/dashboard/copy_uncertain/xyz" || requests[2].body["trueClass"] != "Other" {
		t.Errorf("unexpected copy request %s %v", requests[2].path, requests[2].body)
	}
}

func TestListResultsFillsUnlabelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dashboard/results" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id":1,"image_name":"1.jpg","systemAnalysis":"Paper","confidence":91,"trueClass":"Paper","success":true},
			{"id":"2","image_name":"2.jpg","systemAnalysis":"Plastic","confidence":null,"trueClass":""}
		]`))
	}))
	defer srv.Close()

	results, err := NewClient(srv.URL).ListResults(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "1" || results[0].Confidence == nil || *results[0].Confidence != 91 {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].TrueClass != "-" {
		t.Errorf("expected unlabelled marker, got %q", results[1].TrueClass)
	}
	if results[1].Confidence != nil {
		t.Error("expected nil confidence for null value")
	}
}

func TestFetchImageEscapesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/images/item%201.jpg" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	body, contentType, err := NewClient(srv.URL).FetchImage(context.Background(), "item 1.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "jpeg-bytes" || contentType != "image/jpeg" {
		t.Errorf("unexpected image %q %q", data, contentType)
	}
}

func TestGetResultUnwrapsSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dashboard/results/7":
			w.Write([]byte(`{"sample":{"id":7,"image_name":"7.jpg","system_analysis":"Plastic","image_class":"Other"}}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL)

	rec, err := client.GetResult(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "7" || rec.SystemAnalysis != "Plastic" || rec.TrueClass != "Other" {
		t.Errorf("unexpected result %+v", rec)
	}

	_, err = client.GetResult(context.Background(), "8")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected not found status error, got %v", err)
	}
}
