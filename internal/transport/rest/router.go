package rest

import (
	"net/http"
	"time"

	"github.com/adserve/adzone/internal/metrics"
	"github.com/adserve/adzone/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type RouterDeps struct {
	Handler  *Handler
	Verifier security.AccessTokenVerifier

	// Rate limit for the management API. Serve/track endpoints are not
	// limited here; they sit behind CDN/edge controls.
	RateLimit       int
	RateLimitWindow time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}
	if d.RateLimit <= 0 {
		d.RateLimit = 100
	}
	if d.RateLimitWindow <= 0 {
		d.RateLimitWindow = time.Minute
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// public delivery surface
		r.Get("/zones/{zoneID}/ad", d.Handler.Serve)
		r.Post("/ads/{adID}/impressions", d.Handler.TrackImpression)
		r.Post("/ads/{adID}/clicks", d.Handler.TrackClick)

		// management surface
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(d.RateLimit, d.RateLimitWindow))
			r.Use(AuthMiddleware(d.Verifier))

			r.Post("/advertisers", d.Handler.CreateAdvertiser)
			r.Get("/advertisers/{advertiserID}", d.Handler.GetAdvertiser)
			r.Put("/advertisers/{advertiserID}", d.Handler.UpdateAdvertiser)

			r.Post("/categories", d.Handler.CreateCategory)
			r.Get("/categories", d.Handler.ListCategories)

			r.Post("/zones", d.Handler.CreateZone)
			r.Get("/zones", d.Handler.ListZones)

			r.Post("/ads", d.Handler.CreateAd)
			r.Get("/ads", d.Handler.ListAds)
			r.Get("/ads/{adID}", d.Handler.GetAd)
			r.Put("/ads/{adID}", d.Handler.UpdateAd)
			r.Put("/ads/{adID}/enabled", d.Handler.SetAdEnabled)
			r.Put("/ads/{adID}/expiry", d.Handler.ExtendAd)
			r.Get("/ads/{adID}/stats", d.Handler.AdStats)

			r.Post("/creatives/uploads", d.Handler.PresignUpload)
		})
	})

	return r
}
