package models

import (
	"sort"
	"strings"
)

// CampaignListing is a campaign snapshot joined with its decoded metadata
// and local annotations for list views.
type CampaignListing struct {
	Campaign
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url,omitempty"`
	Slug        string  `json:"slug"`
	OwnerName   string  `json:"owner_name,omitempty"`
	Archived    bool    `json:"archived"`
	ProgressPct float64 `json:"progress_pct"`
}

// Listing sort orders
const (
	SortNewest   = "newest"
	SortDeadline = "deadline"
	SortProgress = "progress"
	SortRaised   = "raised"
)

type ListingFilter struct {
	Query           string
	State           *CampaignState
	IncludeArchived bool
	Sort            string
	Limit           int
}

// SearchListings keeps listings whose title or description contains the
// query, case-insensitively. An empty query keeps everything.
func SearchListings(items []CampaignListing, query string) []CampaignListing {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	out := make([]CampaignListing, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), q) || strings.Contains(strings.ToLower(it.Description), q) {
			out = append(out, it)
		}
	}
	return out
}

func FilterListingsByState(items []CampaignListing, state CampaignState) []CampaignListing {
	out := make([]CampaignListing, 0, len(items))
	for _, it := range items {
		if it.State == state {
			out = append(out, it)
		}
	}
	return out
}

// SortListings orders listings in place. Input order is assumed newest
// first, which SortNewest preserves.
func SortListings(items []CampaignListing, order string) {
	switch order {
	case SortDeadline:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].DeadlineAt.Before(items[j].DeadlineAt)
		})
	case SortProgress:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].ProgressPct > items[j].ProgressPct
		})
	case SortRaised:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Raised > items[j].Raised
		})
	}
}

// ApplyListingFilter runs search, state filter, archive filter, sort and
// limit in that order.
func ApplyListingFilter(items []CampaignListing, f ListingFilter) []CampaignListing {
	out := SearchListings(append([]CampaignListing(nil), items...), f.Query)
	if f.State != nil {
		out = FilterListingsByState(out, *f.State)
	}
	if !f.IncludeArchived {
		kept := make([]CampaignListing, 0, len(out))
		for _, it := range out {
			if !it.Archived {
				kept = append(kept, it)
			}
		}
		out = kept
	}
	SortListings(out, f.Sort)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
