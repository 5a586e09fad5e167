package handlers

import (
	"net/http"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/logx"
)

// ReportHandler serves the overview tab.
type ReportHandler struct {
	usecase reportUsecase
	logger  logx.Logger
}

// NewReportHandler wires a reportUsecase into HTTP handlers.
func NewReportHandler(logger logx.Logger, uc reportUsecase) *ReportHandler {
	return &ReportHandler{usecase: uc, logger: logger}
}

// Overview handles GET /reports/overview?from=&to= (RFC 3339, optional).
func (h *ReportHandler) Overview(w http.ResponseWriter, r *http.Request) {
	v, _, ok := viewerFrom(r)
	if !ok {
		writeErr(h.logger, w, r, apperr.ErrUnauthorized)
		return
	}

	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		t, err := queryTime(r, name)
		if err != nil {
			writeErr(h.logger, w, r, err)
			return
		}
		if t != nil {
			*dst = *t
		}
	}

	o, err := h.usecase.Overview(r.Context(), v, from, to)
	if err != nil {
		writeErr(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, newOverviewResponse(o))
}
