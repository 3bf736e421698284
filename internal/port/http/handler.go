package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/repository"
	"github.com/peppermint/listing-service/internal/service"
)

type Handler struct {
	listings      service.ListingService
	offers        service.OfferService
	notifications service.NotificationService
	log           logger.Logger
	jwtSecret     string
}

func NewHandler(
	listings service.ListingService,
	offers service.OfferService,
	notifications service.NotificationService,
	log logger.Logger,
	jwtSecret string,
) *Handler {
	return &Handler{
		listings:      listings,
		offers:        offers,
		notifications: notifications,
		log:           log,
		jwtSecret:     jwtSecret,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(h.log))

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.jwtSecret, h.log))

		r.Route("/api/listings", func(r chi.Router) {
			r.Post("/", h.createListing)
			r.Get("/", h.searchListings)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getListing)
				r.Delete("/", h.deleteListing)
				r.Post("/renew", h.renewListing)
				r.Post("/mark-sold", h.markListingSold)
				r.Post("/offers", h.submitOffer)
				r.Get("/offers", h.listOffers)
			})
		})

		r.Route("/api/offers/{id}", func(r chi.Router) {
			r.Post("/accept", h.acceptOffer)
			r.Post("/reject", h.rejectOffer)
			r.Post("/counter", h.counterOffer)
			r.Post("/withdraw", h.withdrawOffer)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Post("/{id}/read", h.markNotificationRead)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var input entity.CreateListingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	listing, err := h.listings.Create(r.Context(), userID, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (h *Handler) searchListings(w http.ResponseWriter, r *http.Request) {
	params := repository.ListListingsParams{
		AuthorID: r.URL.Query().Get("authorId"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "pageSize", 20),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := entity.ParseListingStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.Status = status
	}

	result, err := h.listings.Search(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.listings.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renewListing(w http.ResponseWriter, r *http.Request) {
	h.transitionListing(w, r, entity.TriggerRenew)
}

func (h *Handler) markListingSold(w http.ResponseWriter, r *http.Request) {
	h.transitionListing(w, r, entity.TriggerMarkSold)
}

func (h *Handler) transitionListing(w http.ResponseWriter, r *http.Request, trigger entity.Trigger) {
	userID, _ := UserIDFromContext(r.Context())
	listing, err := h.listings.Transition(r.Context(), chi.URLParam(r, "id"), trigger, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

type submitOfferRequest struct {
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
}

func (h *Handler) submitOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req submitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	offer, err := h.offers.Submit(r.Context(), chi.URLParam(r, "id"), userID, req.Amount, req.Message)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	offers, err := h.offers.ListByListing(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (h *Handler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	offer, err := h.offers.Accept(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) rejectOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	offer, err := h.offers.Reject(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

type counterOfferRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) counterOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req counterOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	offer, err := h.offers.Counter(r.Context(), chi.URLParam(r, "id"), userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) withdrawOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	offer, err := h.offers.Withdraw(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	params := repository.ListNotificationsParams{
		UserID:     userID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", 20),
	}

	notifications, err := h.notifications.ListForUser(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.notifications.MarkRead(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the domain error taxonomy onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, entity.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrInvalidState),
		errors.Is(err, entity.ErrDuplicateOffer),
		errors.Is(err, entity.ErrSelfOfferNotAllowed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, entity.ErrAdmissionDenied):
		w.Header().Set("Retry-After", strconv.Itoa(int(service.DefaultAdmissionWindow.Seconds())))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, entity.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Errorf("unhandled error reached the HTTP port: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
