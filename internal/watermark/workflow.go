// Package watermark runs the protect-and-bill pipeline for uploaded
// documents.
//
// A document moves through Received, Decrypted, CreditChecked,
// AssetResolved, Composed, Stamped, Committed and Delivered. Any failure
// aborts the request: no credit is charged and no partial document is
// returned. Usage is committed only after every page of every document in
// the request has been stamped.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go-aquamark/internal/decrypt"
	"go-aquamark/internal/ledger"
	"go-aquamark/internal/metrics"
	"go-aquamark/internal/overlay"
	"go-aquamark/internal/pdf"
	"go-aquamark/internal/utils"

	"go.uber.org/zap"
)

type State int

const (
	StateReceived State = iota
	StateDecrypted
	StateCreditChecked
	StateAssetResolved
	StateComposed
	StateStamped
	StateCommitted
	StateDelivered
)

var stateNames = [...]string{
	"received",
	"decrypted",
	"credit_checked",
	"asset_resolved",
	"composed",
	"stamped",
	"committed",
	"delivered",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// pdfcpu watermark descriptors.
const (
	overlayDesc    = "pos:c, scale:1 rel, rot:0, op:1"
	badgeDesc      = "pos:c, scale:0.5 rel, rot:0, op:1"
	disclaimerDesc = "fontname:Helvetica, points:7, fillcolor:#FF0000, position:bc, offset:0 16, scalefactor:1 abs, rotation:0, opacity:1, aligntext:c"

	disclaimerWidth = 120
)

type Decrypter interface {
	Decrypt(ctx context.Context, data []byte) ([]byte, error)
}

type Ledger interface {
	CheckCredit(ctx context.Context, identity string, pages int) (ledger.Record, error)
	CommitUsage(ctx context.Context, identity string, pages int, snapshot ledger.Record) (ledger.Record, error)
}

type LogoResolver interface {
	ResolveLatestLogo(ctx context.Context, identity string) ([]byte, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	Decrypter Decrypter
	Ledger    Ledger
	Logos     LogoResolver
	Composer  *overlay.Composer

	// Fetcher downloads HologramURL. Both are optional.
	Fetcher     Fetcher
	HologramURL string

	QRBaseURL     string
	BadgeTemplate image.Image
	// PerPageGeometry builds one overlay per distinct page size instead of
	// sizing every page's overlay from page 1.
	PerPageGeometry bool
	// Concurrency bounds Batch; values below 1 mean 1.
	Concurrency int

	Metrics *metrics.Metrics
	Log     *zap.Logger
	Now     func() time.Time
}

type Service struct {
	decrypter Decrypter
	ledger    Ledger
	logos     LogoResolver
	composer  *overlay.Composer

	fetcher     Fetcher
	hologramURL string

	qrBaseURL       string
	badgeTemplate   image.Image
	perPageGeometry bool
	concurrency     int

	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		decrypter:       opts.Decrypter,
		ledger:          opts.Ledger,
		logos:           opts.Logos,
		composer:        opts.Composer,
		fetcher:         opts.Fetcher,
		hologramURL:     opts.HologramURL,
		qrBaseURL:       opts.QRBaseURL,
		badgeTemplate:   opts.BadgeTemplate,
		perPageGeometry: opts.PerPageGeometry,
		concurrency:     max(1, opts.Concurrency),
		metrics:         opts.Metrics,
		log:             opts.Log,
		now:             opts.Now,
	}
	if s.composer == nil {
		s.composer = overlay.NewComposer(overlay.DefaultParams())
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Request is one document to protect.
type Request struct {
	Identity    string
	Filename    string
	Data        []byte
	Lender      string
	Salesperson string
	Processor   string
	// Jurisdiction is a two-letter code selecting a first-page disclaimer.
	Jurisdiction string
	// Badge stamps Lender as a centered badge on every page.
	Badge bool
}

type Result struct {
	Filename string
	Data     []byte
	Pages    int
}

type document struct {
	req  Request
	data []byte
	info pdf.Info
}

type artwork struct {
	logo     image.Image
	hologram image.Image
}

// Watermark protects every document in reqs for a single identity and bills
// the total page count in one commit. It returns either all results or an
// error.
func (s *Service) Watermark(ctx context.Context, reqs []Request) ([]Result, error) {
	if len(reqs) == 0 {
		return nil, failAt(StateReceived, fmt.Errorf("%w: file", ErrInputMissing))
	}
	identity := reqs[0].Identity
	log := s.log.With(zap.String("user_email", identity), zap.Int("documents", len(reqs)))

	docs := make([]*document, 0, len(reqs))
	total := 0
	for _, req := range reqs {
		if req.Identity != identity {
			return nil, failAt(StateReceived, fmt.Errorf("%w: one user_email per request", ErrInputMissing))
		}
		doc, err := s.prepare(ctx, req)
		if err != nil {
			return nil, s.failed(log, err)
		}
		docs = append(docs, doc)
		total += doc.info.PageCount
	}

	snapshot, err := s.checkCredit(ctx, identity, total)
	if err != nil {
		return nil, s.failed(log, err)
	}

	art, err := s.resolveArtwork(ctx, identity)
	if err != nil {
		return nil, s.failed(log, err)
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		out, err := s.stamp(doc, art)
		if err != nil {
			return nil, s.failed(log, err)
		}
		results = append(results, Result{
			Filename: utils.ProtectedFilename(doc.req.Filename),
			Data:     out,
			Pages:    doc.info.PageCount,
		})
	}

	rec, err := s.ledger.CommitUsage(ctx, identity, total, snapshot)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredit) {
			s.metrics.CreditRejected()
		}
		return nil, s.failed(log, failAt(StateCommitted, err))
	}
	s.metrics.PagesStamped(total)

	log.Debug("documents delivered",
		zap.Int("pages", total),
		zap.Int("pages_used", rec.PagesUsed),
		zap.Int("pages_remaining", rec.Remaining()))
	return results, nil
}

func (s *Service) failed(log *zap.Logger, err error) error {
	stage, _ := StageOf(err)
	kind := KindOf(err)
	fields := []zap.Field{zap.Stringer("stage", stage), zap.String("kind", kind.Code()), zap.Error(err)}
	if kind.HTTPStatus() >= 500 {
		log.Error("watermark failed", fields...)
	} else {
		log.Warn("watermark rejected", fields...)
	}
	return err
}

// prepare validates req and carries it to Decrypted.
func (s *Service) prepare(ctx context.Context, req Request) (*document, error) {
	switch {
	case strings.TrimSpace(req.Identity) == "":
		return nil, failAt(StateReceived, fmt.Errorf("%w: user_email", ErrInputMissing))
	case len(req.Data) == 0:
		return nil, failAt(StateReceived, fmt.Errorf("%w: file", ErrInputMissing))
	case req.Badge && strings.TrimSpace(req.Lender) == "":
		return nil, failAt(StateReceived, fmt.Errorf("%w: lender is required for a badge", ErrInputMissing))
	}

	plain, err := s.decrypter.Decrypt(ctx, req.Data)
	if err != nil {
		return nil, failAt(StateDecrypted, err)
	}
	info, err := pdf.Inspect(plain)
	if err != nil {
		return nil, failAt(StateDecrypted, fmt.Errorf("%w: %v", decrypt.ErrDecryptionFailed, err))
	}
	if info.PageCount < 1 {
		return nil, failAt(StateDecrypted, fmt.Errorf("%w: document has no pages", ErrInputMissing))
	}
	s.log.Debug("document decrypted",
		zap.String("user_email", req.Identity),
		zap.String("filename", req.Filename),
		zap.Int("pages", info.PageCount))
	return &document{req: req, data: plain, info: info}, nil
}

func (s *Service) checkCredit(ctx context.Context, identity string, pages int) (ledger.Record, error) {
	snapshot, err := s.ledger.CheckCredit(ctx, identity, pages)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredit) {
			s.metrics.CreditRejected()
		}
		return ledger.Record{}, failAt(StateCreditChecked, err)
	}
	return snapshot, nil
}

func (s *Service) resolveArtwork(ctx context.Context, identity string) (*artwork, error) {
	data, err := s.logos.ResolveLatestLogo(ctx, identity)
	if err != nil {
		return nil, failAt(StateAssetResolved, err)
	}
	logo, format, err := overlay.DecodeLogo(data)
	if err != nil {
		return nil, failAt(StateAssetResolved, err)
	}
	s.log.Debug("logo resolved", zap.String("user_email", identity), zap.String("format", format))
	return &artwork{logo: logo, hologram: s.fetchHologram(ctx)}, nil
}

// fetchHologram is best-effort; failures leave the hologram out.
func (s *Service) fetchHologram(ctx context.Context) image.Image {
	if s.hologramURL == "" || s.fetcher == nil {
		return nil
	}
	data, err := s.fetcher.Fetch(ctx, s.hologramURL)
	if err != nil {
		s.log.Warn("hologram unavailable", zap.String("url", s.hologramURL), zap.Error(err))
		return nil
	}
	img, _, err := overlay.DecodeLogo(data)
	if err != nil {
		s.log.Warn("hologram unreadable", zap.String("url", s.hologramURL), zap.Error(err))
		return nil
	}
	return img
}

type pageGroup struct {
	dim   pdf.Dim
	pages []string
}

// pageGroups returns the overlay sizes to build. Without per-page geometry
// a single overlay sized from page 1 covers every page.
func (s *Service) pageGroups(info pdf.Info) []pageGroup {
	if !s.perPageGeometry {
		return []pageGroup{{dim: info.First()}}
	}
	var groups []pageGroup
	index := map[pdf.Dim]int{}
	for i, d := range info.Dims {
		g, ok := index[d]
		if !ok {
			g = len(groups)
			index[d] = g
			groups = append(groups, pageGroup{dim: d})
		}
		groups[g].pages = append(groups[g].pages, pdf.PageSelection(i+1)...)
	}
	return groups
}

// stamp carries a decrypted document through Composed and Stamped.
func (s *Service) stamp(doc *document, art *artwork) ([]byte, error) {
	req := doc.req
	layer := overlay.Layer{Logo: art.logo, Hologram: art.hologram}
	if req.Lender != "" {
		layer.QR = overlay.QRPayload{
			Owner:       req.Identity,
			Lender:      req.Lender,
			Salesperson: req.Salesperson,
			Processor:   req.Processor,
			Date:        s.now(),
		}.String(s.qrBaseURL)
	}

	out := doc.data
	for _, g := range s.pageGroups(doc.info) {
		ov, err := s.composer.Build(g.dim.Width, g.dim.Height, layer)
		if err != nil {
			return nil, failAt(StateComposed, err)
		}
		if out, err = pdf.StampImage(out, ov.PNG, g.pages, overlayDesc); err != nil {
			return nil, failAt(StateStamped, fmt.Errorf("%w: %v", overlay.ErrCompositionFailed, err))
		}
	}

	if text, ok := overlay.Disclaimer(req.Jurisdiction); ok {
		var err error
		lines := overlay.WrapText(text, disclaimerWidth)
		if out, err = pdf.StampText(out, strings.Join(lines, "\n"), pdf.PageSelection(1), disclaimerDesc); err != nil {
			return nil, failAt(StateStamped, fmt.Errorf("%w: disclaimer: %v", overlay.ErrCompositionFailed, err))
		}
	}

	if req.Badge {
		badge, err := overlay.RenderBadge(s.badgeTemplate, req.Lender)
		if err != nil {
			return nil, failAt(StateComposed, err)
		}
		// Second pass over the tiled layer.
		if out, err = pdf.StampImage(out, badge, nil, badgeDesc); err != nil {
			return nil, failAt(StateStamped, fmt.Errorf("%w: badge: %v", overlay.ErrCompositionFailed, err))
		}
	}
	return out, nil
}
