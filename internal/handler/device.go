package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"commuterbliss/internal/config"
	"commuterbliss/internal/device"
	"commuterbliss/internal/location"
	"commuterbliss/internal/message"
	"commuterbliss/internal/pipeline"
	"commuterbliss/internal/stations"
)

type updateResponse struct {
	Cycle   uint64           `json:"cycle"`
	Route   string           `json:"route"`
	Mode    string           `json:"mode"`
	Reason  string           `json:"reason,omitempty"`
	Failed  bool             `json:"failed"`
	Offset  int64            `json:"offsetMillis"`
	Message message.Outbound `json:"message"`
}

// Update runs one cycle for a device. The body may carry a fresh fix as
// lat/lon, or the reason the device has none as error.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing device id")
		return
	}

	loc, err := reportedLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs := h.preferencesFor(r.Context(), id)
	res, err := h.pipeline.Run(r.Context(), pipeline.Trigger{
		DeviceID: id,
		Prefs:    prefs,
		Locator:  loc,
	})
	if err != nil && !errors.Is(err, device.ErrNoSession) {
		h.logger.Warn("update delivery failed", "device", id, "cycle", res.CycleID, "error", err)
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Cycle:   res.CycleID,
		Route:   res.Resolution.Route.String(),
		Mode:    res.Resolution.Mode,
		Reason:  res.Resolution.Reason,
		Failed:  res.Failed,
		Offset:  res.Offset,
		Message: res.Outbound,
	})
}

type locationBody struct {
	Lat   *json.Number `json:"lat"`
	Lon   *json.Number `json:"lon"`
	Error string       `json:"error"`
}

// reportedLocation reads the device's position from a JSON or form body.
func reportedLocation(r *http.Request) (location.Reported, error) {
	var lat, lon, reason string

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body locationBody
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && err != io.EOF {
			return location.Reported{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		if body.Lat != nil {
			lat = body.Lat.String()
		}
		if body.Lon != nil {
			lon = body.Lon.String()
		}
		reason = body.Error
	} else {
		if err := r.ParseForm(); err != nil {
			return location.Reported{}, fmt.Errorf("invalid form: %w", err)
		}
		lat, lon, reason = r.FormValue("lat"), r.FormValue("lon"), r.FormValue("error")
	}

	if reason != "" {
		return location.Reported{Err: reason}, nil
	}
	if lat == "" && lon == "" {
		return location.Reported{}, nil
	}
	if lat == "" || lon == "" {
		return location.Reported{}, errors.New("lat and lon must be sent together")
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return location.Reported{}, fmt.Errorf("invalid lat %q", lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return location.Reported{}, fmt.Errorf("invalid lon %q", lon)
	}
	return location.Reported{Fix: &location.Fix{Lat: la, Lon: lo}}, nil
}

// Preferences takes over the settings handed in by the configuration page.
// Unknown station codes reject the whole update.
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	var u config.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences: "+err.Error())
		return
	}
	if err := h.checkCodes(u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	next := h.preferencesFor(ctx, id).Apply(u)
	if h.db != nil {
		if err := h.db.SavePreferences(ctx, id, next); err != nil {
			h.logger.Error("saving preferences", "device", id, "error", err)
			writeError(w, http.StatusInternalServerError, "could not save preferences")
			return
		}
	}
	h.setPreferences(id, next)
	h.logger.Info("preferences updated", "device", id, "home", next.Home, "work", next.Work)

	if h.hub != nil && h.hub.Connected(id) {
		if _, err := h.pipeline.Handshake(ctx, id, next); err != nil {
			h.logger.Warn("pushing preferences", "device", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) checkCodes(u config.Update) error {
	check := func(field string, v *string, optional bool) error {
		if v == nil {
			return nil
		}
		code := stations.NormalizeCode(*v)
		if code == "" && optional {
			return nil
		}
		if !stations.ValidCode(code) {
			return fmt.Errorf("%s: %q is not a three-letter station code", field, *v)
		}
		if h.index != nil {
			if _, ok := h.index.LookupByCode(code); !ok {
				return fmt.Errorf("%s: unknown station %s", field, code)
			}
		}
		return nil
	}
	if err := check("home", u.Home, false); err != nil {
		return err
	}
	if err := check("work", u.Work, false); err != nil {
		return err
	}
	return check("via", u.Via, true)
}
