package dashboard

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/LeonardoBeccarini/binova/internal/logging"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	View           ViewModel
	Flash          string
	Level          string
	Error          string
	RefreshSeconds int
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	data := pageData{
		Flash:          r.URL.Query().Get("flash"),
		Level:          r.URL.Query().Get("level"),
		RefreshSeconds: int(s.refresh.Seconds()),
	}
	if data.Level != "error" {
		data.Level = "success"
	}

	code := http.StatusOK
	vm, err := s.svc.View(ctx)
	if err != nil {
		s.log.Error(ctx, "snapshot read failed", logging.Err(err))
		code = statusFor(err)
		data.Error = err.Error()
		vm = Build(nil, nil)
	}
	data.View = vm

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		s.log.Error(ctx, "page render failed", logging.Err(err))
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
