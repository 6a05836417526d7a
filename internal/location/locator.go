package location

import (
	"context"
	"fmt"
)

// Fix is a device position.
type Fix struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are on the globe.
func (f Fix) Valid() bool {
	return f.Lat >= -90 && f.Lat <= 90 && f.Lon >= -180 && f.Lon <= 180
}

// Locator acquires a fresh device position. Implementations must not return
// a cached fix.
type Locator interface {
	Locate(ctx context.Context) (Fix, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Fix, error)

func (f LocatorFunc) Locate(ctx context.Context) (Fix, error) {
	return f(ctx)
}

// Static always returns the same fix. Used by the CLI.
type Static Fix

func (s Static) Locate(context.Context) (Fix, error) {
	return Fix(s), nil
}

// Reported is the position a device sent along with its update request.
// Err carries the device's reason when it has no position, such as
// "permission denied".
type Reported struct {
	Fix *Fix
	Err string
}

func (r Reported) Locate(context.Context) (Fix, error) {
	if r.Err != "" {
		return Fix{}, fmt.Errorf("%w: %s", ErrNoFix, r.Err)
	}
	if r.Fix == nil {
		return Fix{}, ErrNoFix
	}
	return *r.Fix, nil
}
