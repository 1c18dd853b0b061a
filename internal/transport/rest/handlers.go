package rest

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/adserve/adzone/internal/metrics"
	appCtx "github.com/adserve/adzone/internal/pkg/context"
	"github.com/adserve/adzone/internal/service"
	"github.com/adserve/adzone/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Handler struct {
	svc     *service.AdService
	uploads CreativePresigner // nil disables the upload endpoint
}

func NewHandler(svc *service.AdService, uploads CreativePresigner) *Handler {
	return &Handler{svc: svc, uploads: uploads}
}

// Serve picks one ad for the zone. No eligible ad is not an error at the
// HTTP level: the response is 204 and the caller renders an empty slot.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	zoneID, err := uuid.Parse(chi.URLParam(r, "zoneID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid zoneID", map[string]string{
			"zone_id": "must be a valid uuid",
		})
		return
	}

	var categoryID *uuid.UUID
	if s := strings.TrimSpace(r.URL.Query().Get("category")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid category", map[string]string{
				"category": "must be a valid uuid",
			})
			return
		}
		categoryID = &id
	}

	ad, err := h.svc.SelectAd(r.Context(), zoneID, categoryID)
	if err != nil {
		if errors.Is(err, domain.ErrNoAdAvailable) {
			metrics.AdsNoFill.WithLabelValues(zoneID.String()).Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handleErr(w, r, err)
		return
	}

	metrics.AdsServed.WithLabelValues(zoneID.String()).Inc()
	response.Data(w, http.StatusOK, ad)
}

// TrackImpression appends one impression event. 202: the append is durable
// but downstream notification is asynchronous.
func (h *Handler) TrackImpression(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, domain.EventImpression)
}

func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, domain.EventClick)
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request, typ domain.EventType) {
	adID, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", map[string]string{
			"ad_id": "must be a valid uuid",
		})
		return
	}

	// body is optional; an empty POST records "now"
	var req struct {
		Timestamp *string `json:"timestamp"` // RFC3339 optional
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
			return
		}
	}

	var at time.Time
	if req.Timestamp != nil && strings.TrimSpace(*req.Timestamp) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Timestamp))
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid timestamp", nil)
			return
		}
		at = t.UTC()
	}

	traceID := appCtx.GetRequestID(r.Context())
	if traceID == "" {
		traceID = "no-request-id"
	}

	var eventID uuid.UUID
	switch typ {
	case domain.EventClick:
		eventID, err = h.svc.RecordClick(r.Context(), traceID, adID, at, clientIP(r))
	default:
		eventID, err = h.svc.RecordImpression(r.Context(), traceID, adID, at, clientIP(r))
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAd) {
			metrics.EventsRejected.WithLabelValues("unknown_ad").Inc()
		}
		handleErr(w, r, err)
		return
	}

	metrics.EventsRecorded.WithLabelValues(string(typ), "http").Inc()
	response.Data(w, http.StatusAccepted, map[string]string{
		"event_id": eventID.String(),
	})
}

// clientIP keeps it simple: RemoteAddr host part. Trusting X-Forwarded-For
// blindly is a spoofing risk; put a trusted proxy config in front if needed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// parseWindow reads optional from/to RFC3339 query params, both inclusive.
func parseWindow(r *http.Request) (from, to *time.Time, err error) {
	if s := strings.TrimSpace(r.URL.Query().Get("from")); s != "" {
		t, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			return nil, nil, perr
		}
		tt := t.UTC()
		from = &tt
	}
	if s := strings.TrimSpace(r.URL.Query().Get("to")); s != "" {
		t, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			return nil, nil, perr
		}
		tt := t.UTC()
		to = &tt
	}
	return from, to, nil
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError

	switch {
	case errors.As(err, &verr):
		fail(w, r, http.StatusBadRequest, "request.invalid", verr.Error(), map[string]string{
			verr.Field: verr.Reason,
		})
	case errors.Is(err, domain.ErrUnknownAd):
		fail(w, r, http.StatusNotFound, "ad.unknown", err.Error(), nil)
	case errors.Is(err, domain.ErrSlugTaken):
		fail(w, r, http.StatusConflict, "slug.taken", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		fail(w, r, http.StatusNotFound, "resource.not_found", err.Error(), nil)
	default:
		// do not leak internals
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
