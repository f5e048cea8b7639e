package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.LiveHandler)
	r.Get("/ping", PingHandler)
	r.Get("/images/{name}", app.ImageHandler)

	// Leaving the live page is refused while a run is active.
	r.Group(func(r chi.Router) {
		r.Use(app.NavigationGuard)

		r.Get("/dashboard", app.DashboardHandler)
		r.Get("/metrics", app.MetricsHandler)
		r.Get("/edit/{id}", app.EditPageHandler)
		r.Post("/edit/{id}", app.EditSaveHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", app.StatusHandler)
		r.Get("/navigation", app.NavigationHandler)
		r.Get("/runs", app.ListRunsHandler)

		r.Route("/run", func(r chi.Router) {
			r.Post("/start", app.StartRunHandler)
			r.Post("/stop", app.StopRunHandler)
			r.Post("/select", app.SelectClassHandler)
			r.Post("/save", app.SaveClassHandler)
		})
	})

	return r
}

// NavigationGuard redirects page requests back to the live view while the
// controller refuses navigation. The refusal raises the warning banner shown
// there.
func (app *App) NavigationGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !app.Controller.AllowNavigation() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
