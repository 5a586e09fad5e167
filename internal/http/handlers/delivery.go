package handlers

import (
	"net/http"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/delivery"
)

// NextPageHeader carries the token of the following page.
const NextPageHeader = "X-Next-Page-Token"

// DeliveryHandler handles HTTP requests for delivery resources.
type DeliveryHandler struct {
	usecase deliveryUsecase
	logger  logx.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(logger logx.Logger, uc deliveryUsecase) *DeliveryHandler {
	return &DeliveryHandler{usecase: uc, logger: logger}
}

// Create handles POST /deliveries.
// @Summary Создать доставку
// @Description Бизнес публикует доставку; стоимость считается на сервере
// @Tags deliveries
// @Accept json
// @Produce json
// @Param request body createDeliveryRequest true "New delivery"
// @Success 201 {object} DeliveryResponse
// @Failure 403 {object} ErrorResponse "not a business"
// @Failure 422 {object} ErrorResponse "invalid input"
// @Router /deliveries [post]
func (h *DeliveryHandler) Create(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	var req createDeliveryRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	d, err := h.usecase.Create(r.Context(), v, delivery.CreateInput{
		Item:                req.Item,
		DestinationAddress:  req.DestinationAddress,
		DestinationLocation: req.DestinationLocation.toPoint(),
	})
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	w.Header().Set("Location", "/deliveries/"+d.ID.String())
	writeJSON(h.logger, w, r, http.StatusCreated, NewDeliveryResponse(v, d))
}

// List handles GET /deliveries.
// @Summary Список доставок
// @Description Доставки, видимые вызывающему; курьер получает ленту по радиусу
// @Tags deliveries
// @Produce json
// @Param status query string false "comma separated statuses"
// @Param lat query number false "radius center latitude"
// @Param lng query number false "radius center longitude"
// @Param r query number false "radius, km"
// @Param zoom query int false "map zoom, used when r is absent"
// @Param pageSize query int false "page size"
// @Param pageToken query string false "page token"
// @Success 200 {object} deliveryPageResponse
// @Router /deliveries [get]
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	page, err := h.usecase.List(r.Context(), v, q)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	if page.NextPageToken != "" {
		w.Header().Set(NextPageHeader, page.NextPageToken)
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryPageResponse{
		Items:         NewDeliveryResponses(v, page.Items),
		NextPageToken: page.NextPageToken,
	})
}

// Get handles GET /deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	d, err := h.usecase.Get(r.Context(), v, id)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, NewDeliveryResponse(v, d))
}

// Accept handles POST /deliveries/{id}/accept.
// @Summary Принять доставку
// @Description Курьер забирает опубликованную доставку; проигравший гонку получает 409 race_lost
// @Tags deliveries
// @Produce json
// @Success 200 {object} DeliveryResponse
// @Failure 409 {object} ErrorResponse "race_lost"
// @Router /deliveries/{id}/accept [post]
func (h *DeliveryHandler) Accept(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	d, err := h.usecase.Accept(r.Context(), v, id)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, NewDeliveryResponse(v, d))
}

// UpdateStatus handles PATCH /deliveries/{id}.
// @Summary Сменить статус доставки
// @Description Назначенный курьер двигает доставку вперед; устаревший переход дает 409 stale_state
// @Tags deliveries
// @Accept json
// @Produce json
// @Param request body updateStatusRequest true "Target status"
// @Success 200 {object} DeliveryResponse
// @Failure 409 {object} ErrorResponse "stale_state"
// @Router /deliveries/{id} [patch]
func (h *DeliveryHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	var req updateStatusRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	d, err := h.usecase.Advance(r.Context(), v, id, domain.Status(req.Status))
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, NewDeliveryResponse(v, d))
}

func parseListQuery(r *http.Request) (delivery.ListQuery, error) {
	query := r.URL.Query()

	statuses, err := delivery.ParseStatuses(query.Get("status"))
	if err != nil {
		return delivery.ListQuery{}, err
	}
	q := delivery.ListQuery{Statuses: statuses, PageToken: strings.TrimSpace(query.Get("pageToken"))}

	if q.PageSize, err = queryInt(r, "pageSize", 0); err != nil {
		return delivery.ListQuery{}, err
	}

	lat, err := queryFloat(r, "lat")
	if err != nil {
		return delivery.ListQuery{}, err
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		return delivery.ListQuery{}, err
	}
	switch {
	case lat != nil && lng != nil:
		q.Center = &geo.Point{Lat: *lat, Lng: *lng}
	case lat != nil || lng != nil:
		return delivery.ListQuery{}, apperr.Invalid("lat", "lat and lng go together")
	}

	radius, err := queryFloat(r, "r")
	if err != nil {
		return delivery.ListQuery{}, err
	}
	if radius != nil {
		q.RadiusKm = *radius
	} else if query.Get("zoom") != "" {
		zoom, err := queryInt(r, "zoom", 0)
		if err != nil {
			return delivery.ListQuery{}, err
		}
		q.RadiusKm = geo.RadiusForZoom(zoom)
	}

	if q.From, err = queryTime(r, "from"); err != nil {
		return delivery.ListQuery{}, err
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		return delivery.ListQuery{}, err
	}
	return q, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Invalid(name, "must be RFC 3339")
	}
	return &t, nil
}
