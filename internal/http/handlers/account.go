package handlers

import (
	"net/http"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/account"
)

const defaultListLimit = 100

// AccountHandler serves the caller session, onboarding and admin listings.
type AccountHandler struct {
	usecase accountUsecase
	logger  logx.Logger
}

// NewAccountHandler wires an accountUsecase into HTTP handlers.
func NewAccountHandler(logger logx.Logger, uc accountUsecase) *AccountHandler {
	return &AccountHandler{usecase: uc, logger: logger}
}

// Me handles GET /me. A role-pending caller gets phase role_pending and an
// account without a role.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	_, s, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	acc := s.Account
	if s.Phase() == domain.PhaseRoleKnown {
		fresh, err := h.usecase.Me(r.Context(), acc.AccountID())
		if err != nil {
			writeErr(h.logger, w, r, err)
			return
		}
		acc = fresh
	}
	writeJSON(h.logger, w, r, http.StatusOK, MeResponse{
		Phase:   domain.Session{Account: acc}.Phase().String(),
		Account: NewAccountResponse(acc),
	})
}

// Onboard handles POST /me/onboard.
// @Summary Выбрать роль
// @Description Роль задается один раз; повторная попытка дает 409
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body onboardRequest true "Role choice"
// @Success 200 {object} MeResponse
// @Failure 403 {object} ErrorResponse "admin cannot be self-selected"
// @Failure 409 {object} ErrorResponse "role already set"
// @Router /me/onboard [post]
func (h *AccountHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	var req onboardRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	in := account.OnboardInput{
		Role:    domain.Role(req.Role),
		Name:    req.Name,
		Address: req.Address,
		PlaceID: req.PlaceID,
	}
	if req.Location != nil {
		p := req.Location.toPoint()
		in.Location = &p
	}

	acc, err := h.usecase.Onboard(r.Context(), id, in)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, MeResponse{
		Phase:   domain.PhaseRoleKnown.String(),
		Account: NewAccountResponse(acc),
	})
}

// ListCouriers handles GET /couriers.
func (h *AccountHandler) ListCouriers(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	list, err := h.usecase.ListCouriers(r.Context(), v, limit, offset)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	out := make([]AccountResponse, 0, len(list))
	for _, c := range list {
		out = append(out, NewAccountResponse(c))
	}
	writeJSON(h.logger, w, r, http.StatusOK, listResponse[AccountResponse]{Items: out})
}

// ListBusinesses handles GET /businesses.
func (h *AccountHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}

	list, err := h.usecase.ListBusinesses(r.Context(), v, limit, offset)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	out := make([]AccountResponse, 0, len(list))
	for _, b := range list {
		out = append(out, NewAccountResponse(b))
	}
	writeJSON(h.logger, w, r, http.StatusOK, listResponse[AccountResponse]{Items: out})
}

func paging(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", defaultListLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
