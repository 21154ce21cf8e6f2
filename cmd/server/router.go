package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hearthdocs/vault-api/internal/api"
	apimiddleware "github.com/hearthdocs/vault-api/internal/api/middleware"
	"github.com/hearthdocs/vault-api/internal/api/shared"
	"github.com/hearthdocs/vault-api/internal/health"
)

// setupRouter configures the application routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	documentHandler := api.NewDocumentHandler(
		app.vaultService,
		app.config.Storage.TempDir,
		app.logger.With("component", "document_handler"),
	)
	emailHandler := api.NewEmailHandler(
		app.vaultService,
		app.config.Storage.TempDir,
		app.logger.With("component", "email_handler"),
	)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.PrincipalMiddleware)
			r.Post("/documents", documentHandler.UploadDocument)
			r.Get("/documents/{id}", documentHandler.GetDocument)
			r.Get("/documents/{id}/content", documentHandler.DownloadDocument)
			r.Delete("/documents/{id}", documentHandler.DeleteDocument)
		})

		// Inbound mail is routed by its recipient address, not identity
		// headers; the gateway has already verified the webhook signature.
		r.Post("/email-ingest", emailHandler.InboundEmail)
	})

	// Liveness: the process is up and serving.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	// Readiness: reflects the job pipeline state. Degraded still serves
	// traffic; only unhealthy returns 503.
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := app.monitor.Check()
		code := http.StatusOK
		if status.State == health.StateUnhealthy {
			code = http.StatusServiceUnavailable
		}
		shared.RespondWithJSON(w, r, code, status)
	})

	return r
}
