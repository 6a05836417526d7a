package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"commuterbliss/internal/observability"
)

const feasibilityTTL = 60 * time.Second

// Feasibility says whether direct services run between two stations right now.
type Feasibility struct {
	Home    string `json:"home"`
	Work    string `json:"work"`
	Outward bool   `json:"outward"` // home to work
	Return  bool   `json:"return"`  // work to home
}

// Possible reports whether either direction has a direct service.
func (f Feasibility) Possible() bool {
	return f.Outward || f.Return
}

// Feasible asks the board for one service in each direction. Both requests
// must succeed; answers are cached briefly per pair.
func (c *Client) Feasible(ctx context.Context, home, work string, https bool) (Feasibility, error) {
	key := cacheKey("feasible", home, work, https)
	if cached, ok := c.feasible.Get(key); ok {
		return cached.(Feasibility), nil
	}

	outQ := Query{Origin: home, Destination: work, Limit: 1, HTTPS: https}
	backQ := Query{Origin: work, Destination: home, Limit: 1, HTTPS: https}

	var (
		wg         sync.WaitGroup
		out, back  *Board
		errO, errR error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out, errO = c.fetch(ctx, outQ, c.feasibilityTimeout, observability.UpstreamFeasibility)
	}()
	go func() {
		defer wg.Done()
		back, errR = c.fetch(ctx, backQ, c.feasibilityTimeout, observability.UpstreamFeasibility)
	}()
	wg.Wait()

	if errO != nil {
		return Feasibility{}, fmt.Errorf("feasibility %s to %s: %w", home, work, errO)
	}
	if errR != nil {
		return Feasibility{}, fmt.Errorf("feasibility %s to %s: %w", work, home, errR)
	}

	f := Feasibility{
		Home:    home,
		Work:    work,
		Outward: len(out.TrainServices) >= 1,
		Return:  len(back.TrainServices) >= 1,
	}
	c.feasible.Set(key, f, cache.DefaultExpiration)
	c.logger.Debug("route feasibility", "home", home, "work", work, "outward", f.Outward, "return", f.Return)
	return f, nil
}

func cacheKey(prefix string, params ...any) string {
	key := prefix
	for _, p := range params {
		key += ":" + fmt.Sprintf("%v", p)
	}
	return key
}
