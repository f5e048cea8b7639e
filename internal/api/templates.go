package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kdimtricp/ecosort/internal/analytics"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"imageURL": func(name string) string {
		return "/images/" + url.PathEscape(name)
	},
	"lowConfidence": analytics.IsLowConfidence,
	"percent": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
}

// Each page gets its own set so the "content" blocks do not collide.
var pages = mustParsePages()

func mustParsePages() map[string]*template.Template {
	set, err := parsePages()
	if err != nil {
		panic(err)
	}
	return set
}

func parsePages() (map[string]*template.Template, error) {
	layout, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read layout template: %w", err)
	}

	set := make(map[string]*template.Template)
	err = fs.WalkDir(templatesFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == "templates/layout.html" || !strings.HasSuffix(p, ".html") {
			return nil
		}

		content, err := templatesFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", p, err)
		}

		name := strings.TrimSuffix(path.Base(p), ".html")
		tmpl := template.New(name).Funcs(templateFuncs)
		if _, err := tmpl.Parse(string(layout)); err != nil {
			return fmt.Errorf("failed to parse layout for %s: %w", name, err)
		}
		if _, err := tmpl.Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		set[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// page is the data every template receives.
type page struct {
	Title         string
	Nav           string
	Banner        string
	BannerMillis  int64
	RefreshMillis int64
	Classes       any
	Data          any
}

func (app *App) render(w http.ResponseWriter, name string, p page) {
	app.renderStatus(w, http.StatusOK, name, p)
}

func (app *App) renderStatus(w http.ResponseWriter, status int, name string, p page) {
	tmpl, ok := pages[name]
	if !ok {
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	p.Banner, _ = app.Controller.Banner()
	p.BannerMillis = app.bannerTTL().Milliseconds()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		app.logger().Error("rendering template failed", "template", name, "error", err)
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
