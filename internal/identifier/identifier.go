package identifier

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"videoscribe/internal/models"
)

var (
	bvidRe        = regexp.MustCompile(`(?i)\b(BV1[0-9A-Za-z]{9})\b`)
	youTubeIDRe   = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	youTubePathRe = regexp.MustCompile(`/(?:shorts|embed|live|v)/([0-9A-Za-z_-]{11})`)
	favPathRe     = regexp.MustCompile(`/(?:list|medialist/detail)/ml(\d+)`)
	seriesPathRe  = regexp.MustCompile(`/list/series/(\d+)`)
	bareDigitsRe  = regexp.MustCompile(`^\d+$`)
)

var (
	favoritesQueryKeys = []string{"fid", "media_id", "mlid"}
	seasonQueryKeys    = []string{"collection_id", "sid", "season_id", "playlist_id"}
)

var platformHosts = map[models.Platform][]string{
	models.PlatformBilibili: {"bilibili.com", "b23.tv"},
	models.PlatformYouTube:  {"youtube.com", "youtu.be"},
}

// DetectPlatform guesses the platform of free text: a URL, a BV id or a bare
// YouTube id.
func DetectPlatform(raw string) (models.Platform, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return "", false
	}
	for _, platform := range []models.Platform{models.PlatformBilibili, models.PlatformYouTube} {
		for _, host := range platformHosts[platform] {
			if strings.Contains(lower, host) {
				return platform, true
			}
		}
	}
	if strings.HasPrefix(lower, "bv") && bvidRe.MatchString(raw) {
		return models.PlatformBilibili, true
	}
	if youTubeIDRe.MatchString(strings.TrimSpace(raw)) {
		return models.PlatformYouTube, true
	}
	return "", false
}

// ExtractBVID finds a BV id in raw. The bvid query parameter and the URL
// path win over free text.
func ExtractBVID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	candidates := []string{}
	if u, err := url.Parse(raw); err == nil {
		candidates = append(candidates, u.Query().Get("bvid"), u.Path)
	}
	candidates = append(candidates, raw)

	for _, c := range candidates {
		if m := bvidRe.FindStringSubmatch(c); m != nil {
			return "BV" + m[1][2:], nil
		}
	}
	return "", fmt.Errorf("%w: no BV id in %q", models.ErrInvalidReference, raw)
}

// ExtractYouTubeID accepts watch, short, embed and youtu.be URLs or a bare id.
func ExtractYouTubeID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if youTubeIDRe.MatchString(raw) {
		return raw, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err == nil {
		if strings.Contains(u.Host, "youtu.be") {
			id := strings.Trim(u.Path, "/")
			if youTubeIDRe.MatchString(id) {
				return id, nil
			}
		}
		if v := u.Query().Get("v"); youTubeIDRe.MatchString(v) {
			return v, nil
		}
		if m := youTubePathRe.FindStringSubmatch(u.Path); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: no YouTube video id in %q", models.ErrInvalidReference, raw)
}

// SingleReference resolves raw to exactly one video.
func SingleReference(raw string) (models.VideoReference, error) {
	platform, ok := DetectPlatform(raw)
	if !ok {
		return models.VideoReference{}, fmt.Errorf("%w: unrecognized reference %q", models.ErrInvalidReference, raw)
	}

	var (
		id  string
		err error
	)
	switch platform {
	case models.PlatformBilibili:
		id, err = ExtractBVID(raw)
	default:
		id, err = ExtractYouTubeID(raw)
	}
	if err != nil {
		return models.VideoReference{}, err
	}
	return models.VideoReference{Platform: platform, ID: id, URL: CanonicalURL(platform, id)}, nil
}

func CanonicalURL(platform models.Platform, id string) string {
	if platform == models.PlatformYouTube {
		return "https://www.youtube.com/watch?v=" + id
	}
	return "https://www.bilibili.com/video/" + id
}

// DetectCollection reports the container named by a URL path or query, or
// nil when raw addresses no container.
func DetectCollection(raw string) *models.CollectionInfo {
	platform, ok := DetectPlatform(raw)
	if !ok {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	query := u.Query()

	if platform == models.PlatformYouTube {
		// RD lists are generated mixes, not real playlists.
		if list := query.Get("list"); list != "" && !strings.HasPrefix(list, "RD") {
			return &models.CollectionInfo{Platform: platform, Kind: models.CollectionPlaylist, ID: list}
		}
		return nil
	}

	if m := favPathRe.FindStringSubmatch(u.Path); m != nil {
		return &models.CollectionInfo{Platform: platform, Kind: models.CollectionFavorites, ID: m[1]}
	}
	if m := seriesPathRe.FindStringSubmatch(u.Path); m != nil {
		return &models.CollectionInfo{Platform: platform, Kind: models.CollectionSeries, ID: m[1]}
	}
	for _, key := range favoritesQueryKeys {
		if v := query.Get(key); v != "" {
			return &models.CollectionInfo{Platform: platform, Kind: models.CollectionFavorites, ID: v}
		}
	}
	if v := query.Get("series_id"); v != "" {
		return &models.CollectionInfo{Platform: platform, Kind: models.CollectionSeries, ID: v}
	}
	for _, key := range seasonQueryKeys {
		if v := query.Get(key); v != "" {
			return &models.CollectionInfo{Platform: platform, Kind: models.CollectionSeason, ID: v}
		}
	}
	return nil
}

// IsCreatorReference reports whether raw points at an uploader or channel
// rather than a video.
func IsCreatorReference(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(lower, "space.bilibili.com/") {
		return true
	}
	if strings.Contains(lower, "youtube.com/") {
		for _, marker := range []string{"/@", "/channel/", "/c/", "/user/"} {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// creatorListingURL is the page a generic flat listing should read.
func creatorListingURL(platform models.Platform, raw string) string {
	raw = strings.TrimSpace(raw)
	if platform == models.PlatformBilibili && bareDigitsRe.MatchString(raw) {
		return "https://space.bilibili.com/" + raw + "/video"
	}
	if !strings.HasPrefix(raw, "http") {
		return "https://" + raw
	}
	return raw
}

// Dedupe drops repeated references, keeping the first occurrence.
func Dedupe(refs []models.VideoReference) []models.VideoReference {
	seen := make(map[string]bool, len(refs))
	out := make([]models.VideoReference, 0, len(refs))
	for _, ref := range refs {
		key := ref.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}
