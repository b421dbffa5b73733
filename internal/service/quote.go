package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tripdesk/internal/database"
	"tripdesk/internal/domain"
	"tripdesk/internal/models"
	"tripdesk/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	Kind           models.ProductKind
	ProductID      int64
	Date           *time.Time
	Adults         *int
	Children       *int
	SalesPartnerID *int64
}

func (r QuoteRequest) cacheKey() string {
	return fmt.Sprintf("quote:%s:%d:%s:%s:%s:%s", r.Kind, r.ProductID,
		optDate(r.Date), optInt(r.Adults), optInt(r.Children), optInt64(r.SalesPartnerID))
}

// PackageQuote is one package with its selected, commission-adjusted price.
// Total is empty for unpriced packages.
type PackageQuote struct {
	Package models.Package      `json:"package"`
	Price   *models.Price       `json:"price"`
	Total   decimal.NullDecimal `json:"total"`
}

type Quote struct {
	Product  models.Product `json:"product"`
	Date     string         `json:"date,omitempty"`
	Packages []PackageQuote `json:"packages"`
	Display  *PackageQuote  `json:"display"`
}

// Listing is a browse row: a product and the package shown for it.
type Listing struct {
	Product models.Product `json:"product"`
	Display *PackageQuote  `json:"display"`
}

type Highlight struct {
	Product models.Product             `json:"product"`
	Pick    pricing.HighlightCandidate `json:"pick"`
}

// QuoteService prices catalog products for storefronts.
type QuoteService struct {
	repo     domain.CatalogRepository
	cache    domain.CacheStore
	cacheTTL time.Duration
	logger   *zerolog.Logger
}

func NewQuoteService(repo domain.CatalogRepository, cache domain.CacheStore, cacheTTL time.Duration, logger *zerolog.Logger) *QuoteService {
	return &QuoteService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if !req.Kind.Valid() {
		return nil, ErrUnknownKind
	}
	if req.ProductID <= 0 {
		return nil, invalid("product_id", "must be greater than 0")
	}
	if req.Adults != nil && *req.Adults < 0 {
		return nil, invalid("adults", "must be at least 0")
	}
	if req.Children != nil && *req.Children < 0 {
		return nil, invalid("children", "must be at least 0")
	}

	key := req.cacheKey()
	if cached := s.cached(ctx, key); cached != nil {
		return cached, nil
	}

	product, err := s.repo.GetProduct(ctx, req.Kind, req.ProductID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if !product.Visible() {
		return nil, ErrProductNotFound
	}

	quote, err := s.price(ctx, *product, req)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, quote)
	return quote, nil
}

// Browse lists every visible product of a kind with its display package.
func (s *QuoteService) Browse(ctx context.Context, kind models.ProductKind, date *time.Time, salesPartnerID *int64) ([]Listing, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	products, err := s.repo.ListVisibleProducts(ctx, kind, false)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(products))
	for _, p := range products {
		q, err := s.price(ctx, p, QuoteRequest{Kind: kind, ProductID: p.ID, Date: date, SalesPartnerID: salesPartnerID})
		if err != nil {
			return nil, err
		}
		listings = append(listings, Listing{Product: p, Display: q.Display})
	}
	return listings, nil
}

// Highlights ranks the highlighted products of a kind for the dashboard.
func (s *QuoteService) Highlights(ctx context.Context, kind models.ProductKind, limit int) ([]Highlight, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	products, err := s.repo.ListVisibleProducts(ctx, kind, true)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Product, len(products))
	var candidates []pricing.HighlightCandidate
	for _, p := range products {
		byID[p.ID] = p
		rows, err := s.highlightCandidates(ctx, p)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rows...)
	}

	ranked := pricing.RankHighlights(candidates)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Highlight, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, Highlight{Product: byID[c.ProductID], Pick: c})
	}
	return out, nil
}

func (s *QuoteService) highlightCandidates(ctx context.Context, p models.Product) ([]pricing.HighlightCandidate, error) {
	packages, err := s.repo.ListPackages(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	prices, err := s.repo.ListProductPrices(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	images, err := s.repo.ListProductImages(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	var out []pricing.HighlightCandidate
	for _, pkg := range packages {
		price := pricing.SelectPrice(pkg, prices, nil, s.logger)
		if price == nil {
			continue
		}
		if len(images) == 0 {
			out = append(out, pricing.HighlightCandidate{ProductID: p.ID, Package: pkg, Price: *price})
			continue
		}
		for _, img := range images {
			id := img.ID
			out = append(out, pricing.HighlightCandidate{ProductID: p.ID, Package: pkg, Price: *price, ImageID: &id, ImageURL: img.URL})
		}
	}
	return out, nil
}

func (s *QuoteService) price(ctx context.Context, product models.Product, req QuoteRequest) (*Quote, error) {
	packages, err := s.repo.ListPackages(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	prices, err := s.repo.ListProductPrices(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	commission, err := s.commission(ctx, product, req.SalesPartnerID)
	if err != nil {
		return nil, err
	}

	quote := &Quote{Product: product, Packages: make([]PackageQuote, 0, len(packages))}
	if req.Date != nil {
		quote.Date = req.Date.Format(time.DateOnly)
	}

	priced := make([]pricing.PricedPackage, 0, len(packages))
	for _, pkg := range packages {
		pq := PackageQuote{Package: pkg}
		if selected := pricing.SelectPrice(pkg, prices, req.Date, s.logger); selected != nil {
			adjusted := pricing.Adjust(*selected, commission)
			pq.Price = &adjusted
			pq.Total = decimal.NewNullDecimal(pricing.RoundCents(pricing.Total(adjusted, req.Adults, req.Children)))
		}
		quote.Packages = append(quote.Packages, pq)
		priced = append(priced, pricing.PricedPackage{Package: pkg, Price: pq.Price})
	}

	if display := pricing.PickDisplayPackage(priced); display != nil {
		for i := range quote.Packages {
			if quote.Packages[i].Package.ID == display.Package.ID {
				quote.Display = &quote.Packages[i]
				break
			}
		}
	}
	return quote, nil
}

func (s *QuoteService) commission(ctx context.Context, product models.Product, salesPartnerID *int64) (*models.Commission, error) {
	if salesPartnerID == nil {
		return nil, nil
	}
	exact, generic, err := s.repo.FindCommissions(ctx, *salesPartnerID, product.Kind.MustSpec().ServiceType, product.ID)
	if err != nil {
		return nil, fmt.Errorf("find commissions: %w", err)
	}
	return pricing.ResolveCommission(exact, generic), nil
}

func (s *QuoteService) cached(ctx context.Context, key string) *Quote {
	if s.cache == nil {
		return nil
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("quote cache read failed")
		return nil
	}
	if !found {
		return nil
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("quote cache entry corrupt")
		return nil
	}
	q.relinkDisplay()
	return &q
}

func (s *QuoteService) store(ctx context.Context, key string, q *Quote) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("quote cache write failed")
	}
}

// relinkDisplay points Display back into Packages after decoding.
func (q *Quote) relinkDisplay() {
	if q.Display == nil {
		return
	}
	for i := range q.Packages {
		if q.Packages[i].Package.ID == q.Display.Package.ID {
			q.Display = &q.Packages[i]
			return
		}
	}
}

func optDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optInt64(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
