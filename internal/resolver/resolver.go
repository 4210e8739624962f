// Package resolver maps user-supplied campaign identifiers (canonical ids,
// slugs or title fragments) to canonical campaign ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"go.uber.org/zap"
)

// ErrNotResolved is returned when no campaign matches the identifier.
var ErrNotResolved = errors.New("campaign not found")

// Store is the advisory identifier cache. Entries may be stale.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, campaignID string) error
}

// Canonicalizer returns the canonical form of id and whether id is a
// canonical identifier at all.
type Canonicalizer func(id string) (string, bool)

// Resolution paths
const (
	PathCanonical = "canonical"
	PathCache     = "cache"
	PathSlug      = "slug"
	PathTitle     = "title"
	PathMiss      = "miss"
)

type Result struct {
	CampaignID string
	Path       string
}

type Resolver struct {
	svc       ledger.Service
	store     Store
	canonical Canonicalizer
	scanLimit int
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func New(svc ledger.Service, store Store, canonical Canonicalizer, scanLimit int, m *metrics.Metrics, log *zap.Logger) *Resolver {
	if scanLimit <= 0 {
		scanLimit = 50
	}
	return &Resolver{svc: svc, store: store, canonical: canonical, scanLimit: scanLimit, metrics: m, log: log}
}

// cacheKey normalises an identifier for the store. Slugs and raw inputs
// that slugify identically share an entry.
func cacheKey(identifier string) string {
	if s := metadata.Slugify(identifier); s != "" {
		return s
	}
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Resolve tries the canonical form, then the cache, then a scan of recent
// campaigns. A cache hit is returned without any remote call; callers must
// tolerate a stale id failing on the next object read.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Result{}, ErrNotResolved
	}

	if id, ok := r.canonical(identifier); ok {
		r.metrics.Resolution(PathCanonical)
		return Result{CampaignID: id, Path: PathCanonical}, nil
	}

	key := cacheKey(identifier)
	if id, ok, err := r.store.Lookup(ctx, key); err != nil {
		r.log.Warn("identifier cache lookup failed", zap.String("identifier", identifier), zap.Error(err))
	} else if ok {
		r.metrics.Resolution(PathCache)
		return Result{CampaignID: id, Path: PathCache}, nil
	}

	res, err := r.scan(ctx, identifier)
	if err != nil {
		return Result{}, err
	}
	if res.CampaignID == "" {
		r.metrics.Resolution(PathMiss)
		return Result{Path: PathMiss}, ErrNotResolved
	}

	r.metrics.Resolution(res.Path)
	if err := r.store.Remember(ctx, key, res.CampaignID); err != nil {
		r.log.Warn("identifier cache write failed", zap.String("identifier", identifier), zap.Error(err))
	}
	return res, nil
}

type candidate struct {
	id    string
	title string
	slug  string
}

// scan examines the most recent campaigns. Pass one takes the newest exact
// slug match, pass two the newest case-insensitive title substring match.
func (r *Resolver) scan(ctx context.Context, identifier string) (Result, error) {
	created, err := r.svc.QueryEvents(ctx, models.EventCampaignCreated, ledger.EventQuery{
		Limit: r.scanLimit,
		Order: ledger.Descending,
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan campaigns: %w", err)
	}

	sort.SliceStable(created, func(i, j int) bool {
		if !created[i].Timestamp.Equal(created[j].Timestamp) {
			return created[i].Timestamp.After(created[j].Timestamp)
		}
		return created[i].Sequence > created[j].Sequence
	})

	seen := make(map[string]bool, len(created))
	seenSlug := make(map[string]bool, len(created))
	candidates := make([]candidate, 0, len(created))
	for _, ev := range created {
		if seen[ev.CampaignID] {
			continue
		}
		seen[ev.CampaignID] = true

		c, err := r.svc.GetObject(ctx, ev.CampaignID)
		if err != nil {
			r.log.Debug("skipping unreadable campaign during scan",
				zap.String("campaign_id", ev.CampaignID),
				zap.Error(err),
			)
			continue
		}
		meta := metadata.Decode(c.MetadataBlob)
		slug := meta.Slug()
		candidates = append(candidates, candidate{id: c.ID, title: meta.Title, slug: slug})
		if !seenSlug[slug] {
			seenSlug[slug] = true
			r.remember(ctx, slug, c.ID)
		}
	}

	want := metadata.Slugify(identifier)
	if want != "" {
		for _, c := range candidates {
			if c.slug == want {
				return Result{CampaignID: c.id, Path: PathSlug}, nil
			}
		}
	}

	needle := strings.ToLower(identifier)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.title), needle) {
			return Result{CampaignID: c.id, Path: PathTitle}, nil
		}
	}
	return Result{}, nil
}

// Remember records a slug for a campaign seen elsewhere, e.g. in listings.
func (r *Resolver) Remember(ctx context.Context, slug, campaignID string) {
	r.remember(ctx, slug, campaignID)
}

func (r *Resolver) remember(ctx context.Context, slug, campaignID string) {
	if slug == "" || campaignID == "" {
		return
	}
	if err := r.store.Remember(ctx, slug, campaignID); err != nil {
		r.log.Debug("identifier cache write failed", zap.String("slug", slug), zap.Error(err))
	}
}
