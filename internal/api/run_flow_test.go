package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kdimtricp/ecosort/internal/backend"
	"github.com/kdimtricp/ecosort/internal/cache"
	"github.com/kdimtricp/ecosort/internal/controller"
	"github.com/kdimtricp/ecosort/internal/database"
	"github.com/kdimtricp/ecosort/internal/models"
	"github.com/kdimtricp/ecosort/internal/storage"
)

// sorterBackend imitates the classification backend: the first prediction
// is uncertain, every later one reports an empty track.
type sorterBackend struct {
	evaluations atomic.Int32
	mu          sync.Mutex
	calls       []string
}

func (b *sorterBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/home/evaluate" {
		if b.evaluations.Add(1) == 1 {
			w.Write([]byte(`{"label":"Plastic","confidence":"41.5","image_name":"item_1.jpg","inserted_id":17}`))
			return
		}
		w.Write([]byte(`{"label":"Track","confidence":3,"image_name":"item_2.jpg","inserted_id":null}`))
		return
	}
	w.Write([]byte(`{"success":true}`))
}

func (b *sorterBackend) called(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func waitForState(t *testing.T, handler http.Handler, want controller.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		var snap struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("Failed to decode status: %v", err)
		}
		if snap.State == want.String() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s", want)
}

func TestRunFlowPauseReviewResume(t *testing.T) {
	sorter := &sorterBackend{}
	srv := httptest.NewServer(sorter)
	defer srv.Close()

	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "flow.db")})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()
	runs := database.NewRunRepository(db)

	images, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create image storage: %v", err)
	}

	client := backend.NewClient(srv.URL, backend.WithTimeout(2*time.Second))
	ctrl := controller.New(client, runs, controller.Config{Interval: 10 * time.Millisecond})
	defer ctrl.Stop(t.Context())

	handler := NewRouter(&App{
		Controller: ctrl,
		Backend:    client,
		Runs:       runs,
		Images:     images,
		Cache:      cache.NewMemory(),
	})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("/api/run/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("Start failed: %d %s", rec.Code, rec.Body.String())
	}
	waitForState(t, handler, controller.PausedForReview)

	if n := sorter.called("POST /home/system_stop"); n != 1 {
		t.Errorf("Expected one stop notification on pause, got %d", n)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusSeeOther {
		t.Errorf("Expected navigation to be refused while paused, got %d", rec.Code)
	}

	if rec := post("/api/run/save", `{"trueClass":"Paper"}`); rec.Code != http.StatusOK {
		t.Fatalf("Save failed: %d %s", rec.Code, rec.Body.String())
	}
	if n := sorter.called("PUT /dashboard/results/17"); n != 1 {
		t.Errorf("Expected correction for result 17, got %d", n)
	}
	if n := sorter.called("POST /home/servo_push"); n != 1 {
		t.Errorf("Expected servo push, got %d", n)
	}
	if n := sorter.called("POST /dashboard/copy_uncertain/17"); n != 1 {
		t.Errorf("Expected copy-uncertain for a corrected label, got %d", n)
	}

	deadline := time.Now().Add(3 * time.Second)
	for sorter.evaluations.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sorter.evaluations.Load() < 3 {
		t.Fatalf("Expected polling to resume, got %d evaluations", sorter.evaluations.Load())
	}

	if rec := post("/api/run/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("Stop failed: %d", rec.Code)
	}
	waitForState(t, handler, controller.Idle)

	summaries, err := runs.ListRuns(t.Context(), 5)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected one journaled run, got %d", len(summaries))
	}
	got := summaries[0]
	if got.Pauses != 1 || got.Reviews != 1 || got.StopReason != models.StopOperator {
		t.Errorf("Unexpected run summary %+v", got)
	}
}
