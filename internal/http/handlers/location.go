package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/location"
)

// LocationHandler serves courier positions.
type LocationHandler struct {
	usecase locationUsecase
	logger  logx.Logger
}

// NewLocationHandler wires a locationUsecase into HTTP handlers.
func NewLocationHandler(logger logx.Logger, uc locationUsecase) *LocationHandler {
	return &LocationHandler{usecase: uc, logger: logger}
}

// Update handles PUT /me/location.
// @Summary Обновить позицию курьера
// @Description Перезаписывает текущую позицию вызывающего курьера
// @Tags locations
// @Accept json
// @Produce json
// @Param request body locationRequest true "Position"
// @Success 200 {object} LocationResponse
// @Router /me/location [put]
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	var req locationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	in := location.UpdateInput{Point: geo.Point{Lat: *req.Lat, Lng: *req.Lng}, Source: location.SourceHTTP}
	if req.EmittedAt != nil {
		in.EmittedAt = *req.EmittedAt
	}

	loc, err := h.usecase.Update(r.Context(), v, in)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, NewLocationResponse(loc))
}

// Current handles GET /couriers/{id}/location.
func (h *LocationHandler) Current(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	courierID := strings.TrimSpace(chi.URLParam(r, "id"))
	if courierID == "" {
		writeErr(h.logger, w, r, apperr.Invalid("id", "required"))
		return
	}

	loc, err := h.usecase.Current(r.Context(), v, courierID)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, NewLocationResponse(loc))
}

// All handles GET /couriers/locations.
func (h *LocationHandler) All(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	list, err := h.usecase.All(r.Context(), v)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	out := make([]LocationResponse, 0, len(list))
	for _, l := range list {
		out = append(out, NewLocationResponse(l))
	}
	writeJSON(h.logger, w, r, http.StatusOK, listResponse[LocationResponse]{Items: out})
}

// Nearby handles GET /couriers/nearby?lat=&lng=&r=.
func (h *LocationHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	if lat == nil || lng == nil {
		writeErr(h.logger, w, r, apperr.Invalid("lat", "lat and lng are required"))
		return
	}
	radius, err := queryFloat(r, "r")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	if radius == nil {
		writeErr(h.logger, w, r, apperr.Invalid("r", "required"))
		return
	}

	list, err := h.usecase.Nearby(r.Context(), v, geo.Point{Lat: *lat, Lng: *lng}, *radius)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	out := make([]LocationResponse, 0, len(list))
	for _, l := range list {
		out = append(out, NewLocationResponse(l))
	}
	writeJSON(h.logger, w, r, http.StatusOK, listResponse[LocationResponse]{Items: out})
}

// History handles GET /couriers/{id}/history.
func (h *LocationHandler) History(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	pings, err := h.usecase.History(r.Context(), v, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	out := make([]locationPingResponse, 0, len(pings))
	for _, p := range pings {
		out = append(out, locationPingResponse{Lat: p.Point.Lat, Lng: p.Point.Lng, RecordedAt: p.RecordedAt})
	}
	writeJSON(h.logger, w, r, http.StatusOK, listResponse[locationPingResponse]{Items: out})
}
