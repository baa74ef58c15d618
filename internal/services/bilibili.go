package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"videoscribe/internal/models"
	"videoscribe/internal/transcript"
)

const (
	bilibiliAPIBase = "https://api.bilibili.com"
	bilibiliWebBase = "https://www.bilibili.com"

	creatorPageSize   = 50
	favoritesPageSize = 20
	seriesPageSize    = 100

	unknownUploader = "未知UP主"
)

var (
	spaceMidRe = regexp.MustCompile(`space\.bilibili\.com/(\d+)`)
	pageMidRe  = regexp.MustCompile(`"mid"\s*:\s*(\d+)`)
	digitsRe   = regexp.MustCompile(`^\d+$`)
)

type BilibiliOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	CookieFile        string
	// Base URLs are overridable for tests.
	APIBase string
	WebBase string
}

// BilibiliService talks to the public bilibili web APIs for metadata,
// caption catalogs and container listings.
type BilibiliService struct {
	http    *fetcher
	apiBase string
	webBase string
}

func NewBilibiliService(opts BilibiliOptions) (*BilibiliService, error) {
	headers := map[string]string{"Referer": bilibiliWebBase + "/"}
	if opts.CookieFile != "" {
		cookie, err := cookieHeader(opts.CookieFile, "bilibili.com")
		if err != nil {
			return nil, err
		}
		headers["Cookie"] = cookie
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	s := &BilibiliService{
		http:    newFetcher(opts.Timeout, opts.RequestsPerSecond, headers),
		apiBase: bilibiliAPIBase,
		webBase: bilibiliWebBase,
	}
	if opts.APIBase != "" {
		s.apiBase = strings.TrimRight(opts.APIBase, "/")
	}
	if opts.WebBase != "" {
		s.webBase = strings.TrimRight(opts.WebBase, "/")
	}
	return s, nil
}

// VideoURL is the canonical watch page of bvid.
func (s *BilibiliService) VideoURL(bvid string) string {
	return s.webBase + "/video/" + bvid
}

// apiData fetches an API envelope and returns its data field.
func (s *BilibiliService) apiData(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	body, err := s.http.get(ctx, s.apiBase+path+"?"+params.Encode())
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: bilibili %s returned invalid JSON", models.ErrNetwork, path)
	}

	env := gjson.ParseBytes(body)
	code := env.Get("code").Int()
	msg := env.Get("message").String()
	switch code {
	case 0:
		return env.Get("data"), nil
	case -404, 62002, 62004:
		return gjson.Result{}, fmt.Errorf("%w: bilibili %s: %s", models.ErrNotFound, path, msg)
	case -352, -412:
		return gjson.Result{}, fmt.Errorf("%w: bilibili rejected the request (%d). Export browser cookies to a file and set BILIBILI_COOKIE_FILE",
			models.ErrNetwork, code)
	default:
		return gjson.Result{}, fmt.Errorf("%w: bilibili %s: code %d: %s", models.ErrNetwork, path, code, msg)
	}
}

func (s *BilibiliService) VideoMetadata(ctx context.Context, ref models.VideoReference) (*models.SourceVideo, error) {
	bvid := ref.ID
	if bvid == "" {
		return nil, fmt.Errorf("%w: missing BV id in %q", models.ErrInvalidReference, ref.String())
	}

	data, err := s.apiData(ctx, "/x/web-interface/view", url.Values{"bvid": {bvid}})
	if err != nil {
		return nil, err
	}
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: bilibili video %s", models.ErrNotFound, bvid)
	}

	video := &models.SourceVideo{
		Platform:    models.PlatformBilibili,
		ID:          bvid,
		URL:         s.VideoURL(bvid),
		Title:       firstNonEmpty(data.Get("title").String(), bvid),
		Uploader:    firstNonEmpty(data.Get("owner.name").String(), unknownUploader),
		Description: data.Get("desc").String(),
		UploadDate:  formatEpochDate(data.Get("pubdate").Int()),
		Duration:    data.Get("duration").Float(),
	}
	video.LanguageTexts = []string{video.Title, video.Description, data.Get("dynamic").String()}

	for _, tag := range data.Get("tags").Array() {
		name := tag.String()
		if tag.IsObject() {
			name = tag.Get("tag_name").String()
		}
		if name != "" {
			video.Tags = append(video.Tags, name)
		}
	}
	video.AudioLanguage = transcript.HintFromTags(video.Tags)

	pages := data.Get("pages").Array()
	for i, page := range pages {
		cid := page.Get("cid").String()
		if cid == "" || cid == "0" {
			continue
		}
		number := int(page.Get("page").Int())
		if number <= 0 {
			number = i + 1
		}
		video.Parts = append(video.Parts, models.VideoPart{
			Number:   number,
			CID:      cid,
			Title:    firstNonEmpty(page.Get("part").String(), fmt.Sprintf("P%d", number)),
			Duration: page.Get("duration").Float(),
			URL:      fmt.Sprintf("%s?p=%d", video.URL, number),
		})
	}
	if len(pages) == 0 {
		if cid := data.Get("cid").String(); cid != "" && cid != "0" {
			video.Parts = []models.VideoPart{{
				Number:   1,
				CID:      cid,
				Title:    video.Title,
				Duration: video.Duration,
				URL:      video.URL + "?p=1",
			}}
		}
	}
	if len(video.Parts) == 0 {
		return nil, fmt.Errorf("%w: bilibili video %s has no playable parts", models.ErrNotFound, bvid)
	}
	return video, nil
}

// ListCaptions returns the caption catalog of one part.
func (s *BilibiliService) ListCaptions(ctx context.Context, video *models.SourceVideo, part models.VideoPart) ([]models.CaptionTrack, error) {
	if part.CID == "" {
		return nil, nil
	}
	data, err := s.apiData(ctx, "/x/player/v2", url.Values{"bvid": {video.ID}, "cid": {part.CID}})
	if err != nil {
		return nil, err
	}

	var tracks []models.CaptionTrack
	for _, item := range data.Get("subtitle.subtitles").Array() {
		link := item.Get("subtitle_url").String()
		if link == "" {
			continue
		}
		if strings.HasPrefix(link, "//") {
			link = "https:" + link
		}
		tracks = append(tracks, models.CaptionTrack{
			VideoID:  video.ID,
			Language: item.Get("lan").String(),
			URL:      link,
			Kind:     item.Get("type").String(),
			Format:   models.CaptionJSON,
		})
	}
	return tracks, nil
}

func (s *BilibiliService) FetchCaption(ctx context.Context, track models.CaptionTrack) (models.CaptionPayload, error) {
	body, err := s.http.get(ctx, track.URL)
	if err != nil {
		return models.CaptionPayload{}, err
	}
	return models.CaptionPayload{Format: models.CaptionJSON, Data: body}, nil
}

// ListMembers pages through a container. Tokens are opaque to callers.
func (s *BilibiliService) ListMembers(ctx context.Context, info models.CollectionInfo, token string) (models.ListingPage, error) {
	switch info.Kind {
	case models.CollectionFavorites:
		return s.listFavorites(ctx, info.ID, token)
	case models.CollectionSeries:
		return s.listSeries(ctx, info.ID, token)
	case models.CollectionSeason:
		return s.listSeason(ctx, info.ID)
	case models.CollectionCreator:
		return s.listCreator(ctx, info.ID, token)
	default:
		return models.ListingPage{}, fmt.Errorf("%w: bilibili has no %s containers", models.ErrInvalidReference, info.Kind)
	}
}

func (s *BilibiliService) listFavorites(ctx context.Context, mediaID, token string) (models.ListingPage, error) {
	pn := pageNumber(token)
	data, err := s.apiData(ctx, "/x/v3/fav/resource/list", url.Values{
		"media_id": {mediaID},
		"pn":       {strconv.Itoa(pn)},
		"ps":       {strconv.Itoa(favoritesPageSize)},
		"platform": {"web"},
		"order":    {"mtime"},
	})
	if err != nil {
		return models.ListingPage{}, err
	}

	page := models.ListingPage{Title: firstNonEmpty(data.Get("info.title").String(), "收藏夹"+mediaID)}
	medias := data.Get("medias").Array()
	for _, item := range medias {
		bvid := firstNonEmpty(item.Get("bvid").String(), item.Get("bv_id").String())
		if strings.HasPrefix(strings.ToLower(bvid), "bv") {
			page.Members = append(page.Members, bvid)
		}
	}
	if len(medias) > 0 && data.Get("has_more").Bool() {
		page.Next = strconv.Itoa(pn + 1)
	}
	return page, nil
}

func (s *BilibiliService) listSeries(ctx context.Context, seriesID, token string) (models.ListingPage, error) {
	mid, pn := splitSeriesToken(token)
	if mid == "" {
		var err error
		mid, err = s.ResolveCreatorID(ctx, s.webBase+"/list/series/"+seriesID)
		if err != nil {
			return models.ListingPage{}, fmt.Errorf("resolve series owner: %w", err)
		}
	}

	data, err := s.apiData(ctx, "/x/series/archives", url.Values{
		"mid":         {mid},
		"series_id":   {seriesID},
		"only_normal": {"true"},
		"pn":          {strconv.Itoa(pn)},
		"ps":          {strconv.Itoa(seriesPageSize)},
	})
	if err != nil {
		return models.ListingPage{}, err
	}

	page := models.ListingPage{Title: firstNonEmpty(data.Get("meta.name").String(), "合集"+seriesID)}
	archives := data.Get("archives").Array()
	for _, item := range archives {
		if bvid := item.Get("bvid").String(); bvid != "" {
			page.Members = append(page.Members, bvid)
		}
	}
	if len(archives) >= seriesPageSize {
		page.Next = fmt.Sprintf("%s:%d", mid, pn+1)
	}
	return page, nil
}

func (s *BilibiliService) listSeason(ctx context.Context, seasonID string) (models.ListingPage, error) {
	data, err := s.apiData(ctx, "/x/web-interface/view/detail", url.Values{"season_id": {seasonID}})
	if err != nil {
		return models.ListingPage{}, err
	}

	season := data.Get("View.ugc_season")
	page := models.ListingPage{
		Title: firstNonEmpty(season.Get("title").String(), season.Get("name").String(), "合集"+seasonID),
	}
	for _, section := range season.Get("sections").Array() {
		for _, episode := range section.Get("episodes").Array() {
			if bvid := episode.Get("bvid").String(); bvid != "" {
				page.Members = append(page.Members, bvid)
			}
		}
	}
	if len(page.Members) == 0 {
		return models.ListingPage{}, fmt.Errorf("%w: season %s has no videos", models.ErrNotFound, seasonID)
	}
	return page, nil
}

func (s *BilibiliService) listCreator(ctx context.Context, mid, token string) (models.ListingPage, error) {
	pn := pageNumber(token)
	data, err := s.apiData(ctx, "/x/space/arc/search", url.Values{
		"mid":   {mid},
		"ps":    {strconv.Itoa(creatorPageSize)},
		"tid":   {"0"},
		"pn":    {strconv.Itoa(pn)},
		"order": {"pubdate"},
	})
	if err != nil {
		return models.ListingPage{}, err
	}

	var page models.ListingPage
	vlist := data.Get("list.vlist").Array()
	for _, item := range vlist {
		if bvid := item.Get("bvid").String(); bvid != "" {
			page.Members = append(page.Members, bvid)
		}
	}
	if len(vlist) > 0 && int64(pn*creatorPageSize) < data.Get("page.count").Int() {
		page.Next = strconv.Itoa(pn + 1)
	}
	return page, nil
}

// SeasonOf returns the ugc season a video belongs to, or "" when it has none.
func (s *BilibiliService) SeasonOf(ctx context.Context, bvid string) (string, error) {
	data, err := s.apiData(ctx, "/x/web-interface/view/detail", url.Values{"bvid": {bvid}})
	if err != nil {
		return "", err
	}
	season := data.Get("View.ugc_season")
	id := firstNonEmpty(season.Get("id").String(), season.Get("season_id").String())
	if id == "0" {
		return "", nil
	}
	return id, nil
}

// ResolveCreatorID extracts the uploader mid from a space URL or bare id,
// falling back to scraping the page.
func (s *BilibiliService) ResolveCreatorID(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if m := spaceMidRe.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if digitsRe.MatchString(raw) {
		return raw, nil
	}
	if !strings.HasPrefix(raw, "http") {
		return "", fmt.Errorf("%w: cannot find a bilibili uploader in %q", models.ErrInvalidReference, raw)
	}

	body, err := s.http.get(ctx, raw)
	if err != nil {
		return "", err
	}
	m := pageMidRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("%w: no uploader id on %s", models.ErrNotFound, raw)
	}
	slog.Debug("resolved bilibili uploader from page", slog.String("url", raw), slog.String("mid", string(m[1])))
	return string(m[1]), nil
}

func pageNumber(token string) int {
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func splitSeriesToken(token string) (string, int) {
	mid, pn, ok := strings.Cut(token, ":")
	if !ok {
		return "", 1
	}
	return mid, pageNumber(pn)
}

func formatEpochDate(epoch int64) string {
	if epoch <= 0 {
		return models.Unknown
	}
	return time.Unix(epoch, 0).UTC().Format("2006-01-02")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
