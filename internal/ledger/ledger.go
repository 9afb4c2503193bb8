// Package ledger meters per-user page usage.
//
// A Record holds the allotment (page credits) and cumulative consumption for
// one identity. Stores apply consumption as a single conditional increment
// evaluated by the backend, so concurrent requests can never push pages_used
// past page_credits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors.
var (
	ErrRecordNotFound     = errors.New("ledger: usage record not found")
	ErrInsufficientCredit = errors.New("ledger: insufficient page credits")
	ErrCommitFailed       = errors.New("ledger: usage commit failed")
	ErrInvalidAmount      = errors.New("ledger: page amount must be positive")
)

// Record is the usage row for one identity.
type Record struct {
	UserEmail   string `json:"user_email"`
	PageCredits int    `json:"page_credits"`
	PagesUsed   int    `json:"pages_used"`
}

// Remaining is always derived, never read from storage.
func (r Record) Remaining() int {
	return r.PageCredits - r.PagesUsed
}

// Allows reports whether pages more pages fit in the allotment.
func (r Record) Allows(pages int) bool {
	return r.PagesUsed+pages <= r.PageCredits
}

// Store is the persistence contract for usage records.
type Store interface {
	// Get returns ErrRecordNotFound when the identity has no row.
	Get(ctx context.Context, userEmail string) (Record, error)
	// Consume adds pages to pages_used only if the result stays within
	// page_credits. It returns the updated record, ErrInsufficientCredit when
	// the condition fails, or ErrRecordNotFound.
	Consume(ctx context.Context, userEmail string, pages int) (Record, error)
}

// Client wraps a Store with deadlines and logging.
type Client struct {
	store   Store
	timeout time.Duration
	log     *zap.Logger
}

func NewClient(store Store, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{store: store, timeout: timeout, log: log}
}

// CheckCredit fetches the record and verifies pages fit. The returned record
// is the snapshot the caller later hands to CommitUsage. It never mutates.
func (c *Client) CheckCredit(ctx context.Context, userEmail string, pages int) (Record, error) {
	if pages <= 0 {
		return Record{}, ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.store.Get(ctx, userEmail)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("ledger: read usage: %w", err)
	}
	if !rec.Allows(pages) {
		c.log.Info("credit check rejected",
			zap.String("user_email", userEmail),
			zap.Int("requested", pages),
			zap.Int("remaining", rec.Remaining()))
		return rec, ErrInsufficientCredit
	}
	return rec, nil
}

// CommitUsage records pages against the identity. The snapshot is only used
// to detect that other requests consumed credit in between.
func (c *Client) CommitUsage(ctx context.Context, userEmail string, pages int, snapshot Record) (Record, error) {
	if pages <= 0 {
		return Record{}, ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.store.Consume(ctx, userEmail, pages)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredit) || errors.Is(err, ErrRecordNotFound) {
			return rec, err
		}
		return Record{}, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if want := snapshot.PagesUsed + pages; snapshot.UserEmail != "" && rec.PagesUsed != want {
		c.log.Info("usage changed concurrently",
			zap.String("user_email", userEmail),
			zap.Int("expected_pages_used", want),
			zap.Int("pages_used", rec.PagesUsed))
	}
	c.log.Debug("usage committed",
		zap.String("user_email", userEmail),
		zap.Int("pages", pages),
		zap.Int("pages_used", rec.PagesUsed),
		zap.Int("pages_remaining", rec.Remaining()))
	return rec, nil
}
