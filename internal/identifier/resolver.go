package identifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"videoscribe/internal/models"
)

// DefaultMaxPages stops a listing that never reports its last page.
const DefaultMaxPages = 200

type ListingProvider interface {
	ListMembers(ctx context.Context, info models.CollectionInfo, token string) (models.ListingPage, error)
}

type CreatorResolver interface {
	ResolveCreatorID(ctx context.Context, raw string) (string, error)
}

type SeasonFinder interface {
	SeasonOf(ctx context.Context, bvid string) (string, error)
}

type FlatLister interface {
	FlatList(ctx context.Context, platform models.Platform, listURL string) ([]string, error)
}

// Source groups the listing capabilities of one platform.
type Source struct {
	Listings ListingProvider
	Creators CreatorResolver
}

type Resolver struct {
	sources  map[models.Platform]Source
	seasons  SeasonFinder
	flat     FlatLister
	maxPages int
}

func NewResolver(sources map[models.Platform]Source, seasons SeasonFinder, flat FlatLister) *Resolver {
	return &Resolver{sources: sources, seasons: seasons, flat: flat, maxPages: DefaultMaxPages}
}

func (r *Resolver) WithMaxPages(n int) *Resolver {
	if n > 0 {
		r.maxPages = n
	}
	return r
}

// Resolution is the flat member list behind one user reference.
type Resolution struct {
	References []models.VideoReference
	Title      string
	Container  *models.CollectionInfo
}

// Resolve turns a reference into an ordered, deduplicated list of videos.
// Container and creator references are expanded; anything else must name a
// single video.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	platform, ok := DetectPlatform(raw)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: unrecognized reference %q", models.ErrInvalidReference, raw)
	}

	if info := DetectCollection(raw); info != nil {
		refs, title, err := r.ExpandCollection(ctx, *info)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{References: refs, Title: title, Container: info}, nil
	}

	if IsCreatorReference(raw) {
		refs, title, err := r.ExpandCreator(ctx, platform, raw)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{References: refs, Title: title}, nil
	}

	ref, err := SingleReference(raw)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{References: []models.VideoReference{ref}}, nil
}

// ExpandCollection pages through a container until the provider reports the
// last page or the page ceiling is reached.
func (r *Resolver) ExpandCollection(ctx context.Context, info models.CollectionInfo) ([]models.VideoReference, string, error) {
	listings := r.sources[info.Platform].Listings
	if listings == nil {
		return nil, "", fmt.Errorf("%w: no listing provider for %s", models.ErrEngineUnavailable, info.Platform)
	}

	var (
		refs  []models.VideoReference
		title string
		token string
	)
	for page := 1; ; page++ {
		if page > r.maxPages {
			slog.Warn("listing page ceiling reached",
				slog.String("platform", string(info.Platform)),
				slog.String("kind", string(info.Kind)),
				slog.String("id", info.ID),
				slog.Int("pages", r.maxPages))
			break
		}

		result, err := listings.ListMembers(ctx, info, token)
		if err != nil {
			return nil, "", fmt.Errorf("list %s %s page %d: %w", info.Kind, info.ID, page, err)
		}
		if title == "" {
			title = result.Title
		}
		for _, id := range result.Members {
			refs = append(refs, models.VideoReference{Platform: info.Platform, ID: id, URL: CanonicalURL(info.Platform, id)})
		}
		if result.Next == "" {
			break
		}
		token = result.Next
	}

	return Dedupe(refs), title, nil
}

// ExpandCreator lists a creator's uploads through the provider API and falls
// back to a flat listing of the channel page when that yields nothing.
func (r *Resolver) ExpandCreator(ctx context.Context, platform models.Platform, raw string) ([]models.VideoReference, string, error) {
	var (
		refs  []models.VideoReference
		title string
	)

	src := r.sources[platform]
	if src.Creators != nil && src.Listings != nil {
		id, err := src.Creators.ResolveCreatorID(ctx, raw)
		if err == nil {
			refs, title, err = r.ExpandCollection(ctx, models.CollectionInfo{Platform: platform, Kind: models.CollectionCreator, ID: id})
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			slog.Warn("creator listing failed, falling back to flat listing", slog.String("reference", raw), slog.Any("error", err))
		}
	}
	if len(refs) > 0 {
		return refs, title, nil
	}

	if r.flat == nil {
		return nil, "", errors.Join(models.ErrEngineUnavailable, fmt.Errorf("no flat lister for %s", raw))
	}
	urls, err := r.flat.FlatList(ctx, platform, creatorListingURL(platform, raw))
	if err != nil {
		return nil, "", err
	}
	for _, u := range urls {
		ref, err := SingleReference(u)
		if err != nil {
			ref = models.VideoReference{Platform: platform, URL: u}
		}
		refs = append(refs, ref)
	}
	return Dedupe(refs), title, nil
}

// ContainerOf finds the container a single video belongs to: one named in
// the reference URL, or for bilibili the season the video is part of.
func (r *Resolver) ContainerOf(ctx context.Context, raw string, ref models.VideoReference) (*models.CollectionInfo, error) {
	if info := DetectCollection(raw); info != nil {
		return info, nil
	}
	if ref.Platform != models.PlatformBilibili || r.seasons == nil || ref.ID == "" {
		return nil, nil
	}
	seasonID, err := r.seasons.SeasonOf(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if seasonID == "" {
		return nil, nil
	}
	return &models.CollectionInfo{Platform: ref.Platform, Kind: models.CollectionSeason, ID: seasonID}, nil
}
