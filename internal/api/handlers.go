package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/ecosort/internal/analytics"
	"github.com/kdimtricp/ecosort/internal/backend"
	"github.com/kdimtricp/ecosort/internal/cache"
	"github.com/kdimtricp/ecosort/internal/controller"
	"github.com/kdimtricp/ecosort/internal/models"
	"github.com/kdimtricp/ecosort/internal/storage"
)

const (
	metricsCacheKey = "classification_metrics"
	maxImageSize    = 10 << 20
	statusRefresh   = 500 * time.Millisecond
)

// RunController is the part of the classification controller the HTTP
// surface drives.
type RunController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SelectManualClass(selected string) error
	ManualSave(ctx context.Context, selected string) error
	AllowNavigation() bool
	Banner() (string, bool)
	Snapshot() controller.Snapshot
}

// ResultsBackend serves the stored results, metrics and images.
type ResultsBackend interface {
	ListResults(ctx context.Context) ([]models.ResultRecord, error)
	GetResult(ctx context.Context, id string) (*models.ResultRecord, error)
	UpdateResult(ctx context.Context, id, trueClass, systemAnalysis string, success *bool) error
	ClassificationMetrics(ctx context.Context) (*models.ClassificationMetrics, error)
	FetchImage(ctx context.Context, name string) (io.ReadCloser, string, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

type App struct {
	Controller RunController
	Backend    ResultsBackend
	Runs       RunLister
	Images     storage.ImageStore
	Cache      cache.Cache
	MetricsTTL time.Duration
	BannerTTL  time.Duration
	Logger     *slog.Logger
}

func (app *App) logger() *slog.Logger {
	if app.Logger == nil {
		return slog.Default()
	}
	return app.Logger
}

func (app *App) bannerTTL() time.Duration {
	if app.BannerTTL <= 0 {
		return controller.DefaultBannerTTL
	}
	return app.BannerTTL
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) LiveHandler(w http.ResponseWriter, r *http.Request) {
	app.render(w, "index", page{
		Title:         "Live",
		Nav:           "live",
		RefreshMillis: statusRefresh.Milliseconds(),
		Classes:       models.ManualClasses,
		Data:          app.Controller.Snapshot(),
	})
}

type dashboardData struct {
	Results      []models.ResultRecord
	Accuracy     *analytics.AccuracyReport
	Summary      *analytics.Summary
	MetricsError string
}

// DashboardHandler loads the result list and the metrics concurrently. A
// metrics failure degrades the page; a results failure fails it.
func (app *App) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	var (
		results    []models.ResultRecord
		metrics    *models.ClassificationMetrics
		metricsErr error
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		results, err = app.Backend.ListResults(ctx)
		return err
	})
	g.Go(func() error {
		metrics, metricsErr = app.classificationMetrics(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		app.logger().Error("loading results failed", "error", err)
		http.Error(w, "Error loading results", http.StatusBadGateway)
		return
	}

	data := dashboardData{Results: results}
	if report, ok := analytics.Accuracy(results); ok {
		data.Accuracy = &report
	}
	if metricsErr != nil {
		app.logger().Warn("loading metrics failed", "error", metricsErr)
		data.MetricsError = metricsErr.Error()
	} else {
		s := analytics.Summarize(*metrics)
		data.Summary = &s
	}

	app.render(w, "dashboard", page{Title: "Dashboard", Nav: "dashboard", Data: data})
}

type metricsData struct {
	Summary *analytics.Summary
	Error   string
}

func (app *App) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var data metricsData

	metrics, err := app.classificationMetrics(r.Context())
	if err != nil {
		app.logger().Warn("loading metrics failed", "error", err)
		data.Error = err.Error()
	} else {
		s := analytics.Summarize(*metrics)
		data.Summary = &s
	}

	app.render(w, "metrics", page{Title: "Metrics", Nav: "metrics", Data: data})
}

// classificationMetrics serves the backend metrics through the response
// cache. Cache failures fall through to the backend.
func (app *App) classificationMetrics(ctx context.Context) (*models.ClassificationMetrics, error) {
	var m models.ClassificationMetrics
	if app.Cache != nil {
		found, err := cache.GetStruct(ctx, app.Cache, metricsCacheKey, &m)
		if err != nil {
			app.logger().Warn("metrics cache read failed", "error", err)
		} else if found {
			return &m, nil
		}
	}

	fresh, err := app.Backend.ClassificationMetrics(ctx)
	if err != nil {
		return nil, err
	}

	if app.Cache != nil && app.MetricsTTL > 0 {
		if err := cache.SetStruct(ctx, app.Cache, metricsCacheKey, fresh, app.MetricsTTL); err != nil {
			app.logger().Warn("metrics cache write failed", "error", err)
		}
	}
	return fresh, nil
}

type editData struct {
	Result *models.ResultRecord
	Error  string
}

func (app *App) EditPageHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	result, err := app.Backend.GetResult(r.Context(), id)
	if err != nil {
		app.backendError(w, r, "loading result", err)
		return
	}

	app.render(w, "edit", page{
		Title:   "Edit result",
		Nav:     "dashboard",
		Classes: models.ManualClasses,
		Data:    editData{Result: result},
	})
}

func (app *App) EditSaveHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	systemAnalysis := r.FormValue("systemAnalysis")
	success := r.FormValue("success") != ""

	class, ok := models.ParseManualClass(r.FormValue("trueClass"))
	if !ok {
		app.renderStatus(w, http.StatusBadRequest, "edit", page{
			Title:   "Edit result",
			Nav:     "dashboard",
			Classes: models.ManualClasses,
			Data: editData{
				Result: &models.ResultRecord{ID: id, SystemAnalysis: systemAnalysis, TrueClass: models.UnlabelledClass, Success: success},
				Error:  "Select a valid class.",
			},
		})
		return
	}

	if err := app.Backend.UpdateResult(r.Context(), id, string(class), systemAnalysis, &success); err != nil {
		app.backendError(w, r, "updating result", err)
		return
	}

	app.logger().Info("result updated", "result_id", id, "true_class", class, "success", success)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// ImageHandler proxies captured images through the local image cache.
func (app *App) ImageHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	file, err := app.Images.Open(name)
	switch {
	case err == nil:
		defer file.Close()
		http.ServeContent(w, r, name, time.Time{}, file)
		return
	case errors.Is(err, storage.ErrInvalidName):
		http.Error(w, "Invalid image name", http.StatusBadRequest)
		return
	case !errors.Is(err, storage.ErrNotCached):
		app.logger().Warn("image cache read failed", "image", name, "error", err)
	}

	body, contentType, err := app.Backend.FetchImage(r.Context(), name)
	if err != nil {
		app.backendError(w, r, "fetching image", err)
		return
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxImageSize))
	if err != nil {
		http.Error(w, "Error reading image", http.StatusBadGateway)
		return
	}

	if err := app.Images.Save(name, bytes.NewReader(data)); err != nil {
		app.logger().Warn("image cache write failed", "image", name, "error", err)
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

func (app *App) backendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var se *backend.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		http.NotFound(w, r)
		return
	}
	app.logger().Error(op+" failed", "path", r.URL.Path, "error", err)
	http.Error(w, "Backend unavailable", http.StatusBadGateway)
}
