package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/monitor"
)

// Service is the monitor surface exposed over HTTP.
type Service interface {
	StartScan(forceFresh bool) models.SellerScanStatus
	ScanStatus() models.SellerScanStatus
	Sellers(ctx context.Context) ([]models.MonitoredSeller, error)
	AddSeller(ctx context.Context, username string) (models.MonitoredSeller, error)
	RemoveSeller(ctx context.Context, username string) error
	AllMatches(ctx context.Context) ([]models.SellerMatch, error)
	MatchesBySeller(ctx context.Context, username string) ([]models.SellerMatch, error)
	MarkSeen(ctx context.Context, id string) error
	MarkAllSeen(ctx context.Context) (int, error)
	MarkNotified(ctx context.Context, ids []string) (int, error)
	PruneSold(ctx context.Context, olderThan time.Duration) (int, error)
	Settings(ctx context.Context) (models.SellerSettings, error)
	UpdateSettings(ctx context.Context, settings models.SellerSettings) error
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

// serviceError maps monitor errors to API errors and logs unexpected ones.
func (h *handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, monitor.ErrSellerExists):
		fail(w, conflict(err.Error()))
	case errors.Is(err, monitor.ErrSellerNotFound), errors.Is(err, monitor.ErrMatchNotFound):
		fail(w, notFound(err.Error()))
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.Any("error", err),
		)
		fail(w, internalError())
	}
}

func decode(r *http.Request, out any) *apiError {
	if r.Body == nil {
		return badRequest("request body required")
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func (h *handler) startScan(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	accepted(w, h.svc.StartScan(force))
}

func (h *handler) scanStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, h.svc.ScanStatus())
}

func (h *handler) listSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.svc.Sellers(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, sellers)
}

type addSellerRequest struct {
	Username string `json:"username"`
}

func (h *handler) addSeller(w http.ResponseWriter, r *http.Request) {
	var req addSellerRequest
	if apiErr := decode(r, &req); apiErr != nil {
		fail(w, apiErr)
		return
	}
	if req.Username == "" {
		fail(w, badRequest("username is required"))
		return
	}
	seller, err := h.svc.AddSeller(r.Context(), req.Username)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	created(w, seller)
}

func (h *handler) removeSeller(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveSeller(r.Context(), chi.URLParam(r, "username")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	noContent(w)
}

func (h *handler) sellerMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.MatchesBySeller(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, matches)
}

func (h *handler) listMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.AllMatches(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]models.SellerMatch, 0, len(matches))
		for _, m := range matches {
			if string(m.Status) == status {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}
	ok(w, matches)
}

func (h *handler) markSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkSeen(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	noContent(w)
}

type countResponse struct {
	Updated int `json:"updated"`
}

func (h *handler) markAllSeen(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllSeen(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, countResponse{Updated: n})
}

type markNotifiedRequest struct {
	IDs []string `json:"ids"`
}

func (h *handler) markNotified(w http.ResponseWriter, r *http.Request) {
	var req markNotifiedRequest
	if apiErr := decode(r, &req); apiErr != nil {
		fail(w, apiErr)
		return
	}
	n, err := h.svc.MarkNotified(r.Context(), req.IDs)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, countResponse{Updated: n})
}

func (h *handler) pruneSold(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("olderThanDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(w, badRequest("olderThanDays must be a non-negative integer"))
			return
		}
		days = n
	}
	n, err := h.svc.PruneSold(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, countResponse{Updated: n})
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	ok(w, settings)
}

func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.SellerSettings
	if apiErr := decode(r, &settings); apiErr != nil {
		fail(w, apiErr)
		return
	}
	if err := h.svc.UpdateSettings(r.Context(), settings); err != nil {
		fail(w, badRequest(err.Error()))
		return
	}
	ok(w, settings)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "ok"})
}
