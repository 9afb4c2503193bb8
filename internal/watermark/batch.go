package watermark

import (
	"context"
	"errors"
	"fmt"

	"go-aquamark/internal/ledger"
	"go-aquamark/internal/overlay"
	"go-aquamark/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one batch item. Exactly one of Result and Err is
// meaningful.
type Outcome struct {
	Index    int
	Identity string
	Result   Result
	Err      error

	snapshot ledger.Record
}

func (o Outcome) OK() bool { return o.Err == nil }

// Batch runs every request through its own pipeline, at most Concurrency at
// a time, then commits the pages of each identity's successes in one
// ledger update. Every request yields an outcome, in input order. If an
// identity's commit fails, its successes are reported as failures.
func (s *Service) Batch(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			// A panic in one pipeline must not take down the others.
			defer func() {
				if r := recover(); r != nil {
					err := failAt(StateStamped, fmt.Errorf("%w: panic: %v", overlay.ErrCompositionFailed, r))
					s.failed(s.log.With(zap.Int("item", i), zap.String("user_email", req.Identity)), err)
					outcomes[i] = Outcome{Index: i, Identity: req.Identity, Err: err}
				}
			}()
			res, snapshot, err := s.process(ctx, req)
			if err != nil {
				s.failed(s.log.With(zap.Int("item", i), zap.String("user_email", req.Identity)), err)
			}
			outcomes[i] = Outcome{Index: i, Identity: req.Identity, Result: res, Err: err, snapshot: snapshot}
			return nil
		})
	}
	_ = g.Wait()

	s.commitBatch(ctx, outcomes)
	return outcomes
}

// process is the single-document pipeline without the commit.
func (s *Service) process(ctx context.Context, req Request) (Result, ledger.Record, error) {
	doc, err := s.prepare(ctx, req)
	if err != nil {
		return Result{}, ledger.Record{}, err
	}
	snapshot, err := s.checkCredit(ctx, req.Identity, doc.info.PageCount)
	if err != nil {
		return Result{}, ledger.Record{}, err
	}
	art, err := s.resolveArtwork(ctx, req.Identity)
	if err != nil {
		return Result{}, ledger.Record{}, err
	}
	out, err := s.stamp(doc, art)
	if err != nil {
		return Result{}, ledger.Record{}, err
	}
	return Result{
		Filename: utils.ProtectedFilename(req.Filename),
		Data:     out,
		Pages:    doc.info.PageCount,
	}, snapshot, nil
}

type tally struct {
	pages    int
	snapshot ledger.Record
	items    []int
}

func (s *Service) commitBatch(ctx context.Context, outcomes []Outcome) {
	var order []string
	tallies := map[string]*tally{}
	for i, o := range outcomes {
		if !o.OK() {
			continue
		}
		t, ok := tallies[o.Identity]
		if !ok {
			t = &tally{snapshot: o.snapshot}
			tallies[o.Identity] = t
			order = append(order, o.Identity)
		}
		t.pages += o.Result.Pages
		t.items = append(t.items, i)
	}

	for _, identity := range order {
		t := tallies[identity]
		rec, err := s.ledger.CommitUsage(ctx, identity, t.pages, t.snapshot)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientCredit) {
				s.metrics.CreditRejected()
			}
			if !errors.Is(err, ledger.ErrCommitFailed) {
				err = fmt.Errorf("%w: %w", ledger.ErrCommitFailed, err)
			}
			err = failAt(StateCommitted, err)
			s.log.Error("batch commit failed",
				zap.String("user_email", identity),
				zap.Int("pages", t.pages),
				zap.Int("items", len(t.items)),
				zap.Error(err))
			for _, i := range t.items {
				outcomes[i].Result = Result{}
				outcomes[i].Err = err
			}
			continue
		}
		s.metrics.PagesStamped(t.pages)
		s.log.Debug("batch usage committed",
			zap.String("user_email", identity),
			zap.Int("pages", t.pages),
			zap.Int("pages_remaining", rec.Remaining()))
	}
}
