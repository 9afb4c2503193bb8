// Package assets locates and downloads the logo image a user uploaded most
// recently.
//
// Logos live under "<identity>/" in an object store and are named
// "<label>-<suffix>.<ext>" where suffix is a monotonically increasing number
// (an upload timestamp). The latest logo is the one with the greatest suffix.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNoLogoFound = errors.New("assets: no logo found")

// Object is one entry returned by a listing.
type Object struct {
	Name string `json:"name"`
}

// Store lists objects and derives their public URLs.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	PublicURL(path string) string
}

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Resolver struct {
	store   Store
	fetcher Fetcher
	timeout time.Duration
	log     *zap.Logger
}

func NewResolver(store Store, fetcher Fetcher, timeout time.Duration, log *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, fetcher: fetcher, timeout: timeout, log: log}
}

// ResolveLatestLogo returns the bytes of the identity's newest logo.
func (r *Resolver) ResolveLatestLogo(ctx context.Context, identity string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objects, err := r.store.List(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("assets: list %q: %w", identity, err)
	}
	latest, ok := Latest(objects)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoLogoFound, identity)
	}

	path := identity + "/" + latest.Name
	data, err := r.fetcher.Fetch(ctx, r.store.PublicURL(path))
	if err != nil {
		return nil, fmt.Errorf("assets: fetch %s: %w", path, err)
	}
	r.log.Debug("resolved logo", zap.String("identity", identity), zap.String("object", latest.Name), zap.Int("bytes", len(data)))
	return data, nil
}

// Latest picks the object with the greatest numeric suffix. Names without a
// suffix rank below every numbered name; ties keep listing order.
func Latest(objects []Object) (Object, bool) {
	var (
		best     Object
		bestRank int64 = -1
		found    bool
	)
	for _, o := range objects {
		if o.Name == "" || strings.HasPrefix(o.Name, ".") {
			continue
		}
		rank, ok := Suffix(o.Name)
		if !ok {
			rank = -1
		}
		if !found || rank > bestRank {
			best, bestRank, found = o, rank, true
		}
	}
	return best, found
}

// Suffix parses the leading digits of the second "-"-separated token, so
// "logo-1712345678901.png" yields 1712345678901.
func Suffix(name string) (int64, bool) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 2 {
		return 0, false
	}
	token := parts[1]
	end := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(token[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
