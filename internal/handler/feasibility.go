package handler

import (
	"net/http"
	"strconv"

	"commuterbliss/internal/stations"
)

type feasibilityResponse struct {
	Home     string `json:"home"`
	Work     string `json:"work"`
	Outward  bool   `json:"outward"`
	Return   bool   `json:"return"`
	Possible bool   `json:"possible"`
}

// Feasibility reports whether direct trains run between home and work in
// either direction.
func (h *Handler) Feasibility(w http.ResponseWriter, r *http.Request) {
	if h.feasible == nil {
		writeError(w, http.StatusNotImplemented, "feasibility needs the departure board source")
		return
	}
	home := stations.NormalizeCode(r.URL.Query().Get("home"))
	work := stations.NormalizeCode(r.URL.Query().Get("work"))
	if !stations.ValidCode(home) || !stations.ValidCode(work) {
		writeError(w, http.StatusBadRequest, "home and work must be three-letter station codes")
		return
	}
	https, _ := strconv.ParseBool(r.URL.Query().Get("https"))

	f, err := h.feasible.Feasible(r.Context(), home, work, https)
	if err != nil {
		h.logger.Warn("feasibility check failed", "home", home, "work", work, "error", err)
		writeError(w, http.StatusBadGateway, "departure board unavailable")
		return
	}
	writeJSON(w, http.StatusOK, feasibilityResponse{
		Home:     f.Home,
		Work:     f.Work,
		Outward:  f.Outward,
		Return:   f.Return,
		Possible: f.Possible(),
	})
}
