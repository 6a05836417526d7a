package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"commuterbliss/internal/device"
	"commuterbliss/internal/storage"
)

const recentDispatches = 15

// StatusView is what the status page shows.
type StatusView struct {
	Stations     int
	Sessions     int
	OffsetMillis int64
	Verified     time.Time
	Dispatches   []DispatchRow
	Now          time.Time
}

// DispatchRow is one line of the recent-dispatch table.
type DispatchRow struct {
	Cycle  uint64
	Device string
	Kind   string
	Route  string
	Mode   string
	Failed bool
	Next   string // first departure, "" when none
	Age    string
}

// Status renders the service overview.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	view := h.statusView(ctx, time.Now())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage(view).Render(ctx, w); err != nil {
		h.logger.Error("rendering status page", "error", err)
	}
}

func (h *Handler) statusView(ctx context.Context, now time.Time) StatusView {
	v := StatusView{Now: now}
	if h.index != nil {
		v.Stations = h.index.Len()
	}
	if h.hub != nil {
		v.Sessions = h.hub.Sessions()
	}
	if h.clock != nil {
		v.OffsetMillis = h.clock.Offset()
		v.Verified = h.clock.LastVerified()
	}
	if h.db == nil {
		return v
	}
	list, err := h.db.RecentDispatches(ctx, "", recentDispatches)
	if err != nil {
		h.logger.Warn("loading recent dispatches", "error", err)
		return v
	}
	for _, d := range list {
		v.Dispatches = append(v.Dispatches, dispatchRow(d, now))
	}
	return v
}

func dispatchRow(d storage.Dispatch, now time.Time) DispatchRow {
	row := DispatchRow{
		Cycle:  d.CycleID,
		Device: d.DeviceID,
		Kind:   d.Kind,
		Route:  d.Origin + " → " + d.Destination,
		Mode:   d.Mode,
		Failed: d.Failed,
		Age:    formatAge(now.Sub(d.CreatedAt)),
	}
	if fields, err := device.Decode(d.Payload); err == nil {
		if secs, ok := fields["KEY_TRAIN1_TIME"].(float64); ok && secs > 0 {
			row.Next = time.Unix(int64(secs), 0).In(now.Location()).Format("15:04")
		}
	}
	return row
}

// formatAge renders a duration as "just now", "5 min ago", "3 h ago".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%d h ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d d ago", int(d.Hours()/24))
	}
}

func statusPage(v StatusView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		verified := "never"
		if !v.Verified.IsZero() {
			verified = formatAge(v.Now.Sub(v.Verified))
		}
		if _, err := fmt.Fprintf(w, statusHead,
			v.Stations, v.Sessions, v.OffsetMillis, templ.EscapeString(verified)); err != nil {
			return err
		}
		if len(v.Dispatches) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No messages sent yet.</p>`+statusFoot)
			return err
		}
		if _, err := io.WriteString(w, statusTableHead); err != nil {
			return err
		}
		for _, d := range v.Dispatches {
			class := ""
			if d.Failed {
				class = ` class="failed"`
			}
			next := d.Next
			if next == "" {
				next = "-"
			}
			if _, err := fmt.Fprintf(w, `<tr%s><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				class, d.Cycle,
				templ.EscapeString(d.Device), templ.EscapeString(d.Kind), templ.EscapeString(d.Route),
				templ.EscapeString(d.Mode), templ.EscapeString(next), templ.EscapeString(d.Age)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`+statusFoot)
		return err
	})
}

const statusHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Commuter Bliss</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #1a1a2e; color: #e8e8e8; margin: 2rem; }
  dl { display: grid; grid-template-columns: max-content auto; gap: .25rem 1rem; }
  dt { color: #b0b0b0; }
  table { border-collapse: collapse; margin-top: 1.5rem; }
  th, td { padding: .25rem .75rem; text-align: left; border-bottom: 1px solid #2a2a4a; }
  tr.failed td { color: #f07167; }
  .empty { color: #b0b0b0; }
</style>
</head>
<body>
<h1>Commuter Bliss</h1>
<dl>
  <dt>Stations</dt><dd>%d</dd>
  <dt>Connected devices</dt><dd>%d</dd>
  <dt>Clock offset</dt><dd>%d ms</dd>
  <dt>Last verified</dt><dd>%s</dd>
</dl>
`

const statusTableHead = `<table><thead><tr><th>Cycle</th><th>Device</th><th>Kind</th><th>Route</th><th>Mode</th><th>Next</th><th>Sent</th></tr></thead><tbody>`

const statusFoot = `
</body>
</html>`
