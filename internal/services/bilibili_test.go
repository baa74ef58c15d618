package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoscribe/internal/models"
)

func newTestBilibili(t *testing.T, handler http.Handler) *BilibiliService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewBilibiliService(BilibiliOptions{APIBase: srv.URL, WebBase: srv.URL})
	require.NoError(t, err)
	svc.http.retry = RetryConfig{MaxRetries: 0}
	return svc
}

func TestBilibiliVideoMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BV1ab411c7mD", r.URL.Query().Get("bvid"))
		fmt.Fprint(w, `{"code":0,"data":{
			"title":"Go 教程","desc":"desc","dynamic":"dyn","pubdate":1704067200,"duration":600,
			"owner":{"name":"UP"},"tags":["编程","英语"],
			"pages":[{"cid":11,"page":1,"part":"intro","duration":300},{"cid":12,"page":2,"part":"","duration":300}]}}`)
	})
	svc := newTestBilibili(t, mux)

	video, err := svc.VideoMetadata(context.Background(), models.VideoReference{Platform: models.PlatformBilibili, ID: "BV1ab411c7mD"})
	require.NoError(t, err)

	assert.Equal(t, "Go 教程", video.Title)
	assert.Equal(t, "UP", video.Uploader)
	assert.Equal(t, "2024-01-01", video.UploadDate)
	assert.Equal(t, "en", video.AudioLanguage)
	assert.Equal(t, []string{"Go 教程", "desc", "dyn"}, video.LanguageTexts)
	require.Len(t, video.Parts, 2)
	assert.Equal(t, "11", video.Parts[0].CID)
	assert.Equal(t, "P2", video.Parts[1].Title)
	assert.Equal(t, svc.VideoURL("BV1ab411c7mD")+"?p=2", video.Parts[1].URL)
}

func TestBilibiliErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		expected error
	}{
		{"missing video", `{"code":-404,"message":"啥都木有"}`, http.StatusOK, models.ErrNotFound},
		{"rejected", `{"code":-352,"message":"-352"}`, http.StatusOK, models.ErrNetwork},
		{"http 404", ``, http.StatusNotFound, models.ErrNotFound},
		{"server error", ``, http.StatusBadGateway, models.ErrNetwork},
		{"garbage", `<html>`, http.StatusOK, models.ErrNetwork},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestBilibili(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			_, err := svc.VideoMetadata(context.Background(), models.VideoReference{ID: "BV1ab411c7mD"})
			if !errors.Is(err, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestBilibiliListCaptions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/player/v2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("cid"))
		fmt.Fprint(w, `{"code":0,"data":{"subtitle":{"subtitles":[
			{"lan":"ai-zh","subtitle_url":"//aisubtitle.hdslb.com/a.json"},
			{"lan":"en","subtitle_url":""}]}}}`)
	})
	svc := newTestBilibili(t, mux)

	tracks, err := svc.ListCaptions(context.Background(), &models.SourceVideo{ID: "BV1"}, models.VideoPart{CID: "42"})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://aisubtitle.hdslb.com/a.json", tracks[0].URL)
	assert.Equal(t, models.CaptionJSON, tracks[0].Format)

	none, err := svc.ListCaptions(context.Background(), &models.SourceVideo{ID: "BV1"}, models.VideoPart{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBilibiliListFavorites(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v3/fav/resource/list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pn") {
		case "1":
			fmt.Fprint(w, `{"code":0,"data":{"info":{"title":"收藏"},"medias":[{"bvid":"BV1"},{"bvid":"av2"}],"has_more":true}}`)
		default:
			fmt.Fprint(w, `{"code":0,"data":{"info":{"title":"收藏"},"medias":[{"bvid":"BV3"}],"has_more":false}}`)
		}
	})
	svc := newTestBilibili(t, mux)
	info := models.CollectionInfo{Platform: models.PlatformBilibili, Kind: models.CollectionFavorites, ID: "9"}

	first, err := svc.ListMembers(context.Background(), info, "")
	require.NoError(t, err)
	assert.Equal(t, "收藏", first.Title)
	assert.Equal(t, []string{"BV1"}, first.Members)
	assert.Equal(t, "2", first.Next)

	second, err := svc.ListMembers(context.Background(), info, first.Next)
	require.NoError(t, err)
	assert.Equal(t, []string{"BV3"}, second.Members)
	assert.Empty(t, second.Next)
}

func TestBilibiliListSeries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list/series/77", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<script>window.__INITIAL_STATE__={"mid": 123,"x":1}</script>`)
	})
	mux.HandleFunc("/x/series/archives", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "123", r.URL.Query().Get("mid"))
		fmt.Fprint(w, `{"code":0,"data":{"meta":{"name":"系列"},"archives":[{"bvid":"BV9"}]}}`)
	})
	svc := newTestBilibili(t, mux)

	page, err := svc.ListMembers(context.Background(), models.CollectionInfo{Kind: models.CollectionSeries, ID: "77"}, "")
	require.NoError(t, err)
	assert.Equal(t, "系列", page.Title)
	assert.Equal(t, []string{"BV9"}, page.Members)
	assert.Empty(t, page.Next)
}

func TestBilibiliSeason(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/view/detail", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bvid") != "" {
			fmt.Fprint(w, `{"code":0,"data":{"View":{"ugc_season":{"id":555}}}}`)
			return
		}
		assert.Equal(t, "555", r.URL.Query().Get("season_id"))
		fmt.Fprint(w, `{"code":0,"data":{"View":{"ugc_season":{"title":"合集A","sections":[
			{"episodes":[{"bvid":"BV1"},{"bvid":"BV2"}]},{"episodes":[{"bvid":"BV3"}]}]}}}}`)
	})
	svc := newTestBilibili(t, mux)

	id, err := svc.SeasonOf(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Equal(t, "555", id)

	page, err := svc.ListMembers(context.Background(), models.CollectionInfo{Kind: models.CollectionSeason, ID: id}, "")
	require.NoError(t, err)
	assert.Equal(t, "合集A", page.Title)
	assert.Equal(t, []string{"BV1", "BV2", "BV3"}, page.Members)
	assert.Empty(t, page.Next)
}

func TestBilibiliListCreator(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/space/arc/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pn") == "1" {
			fmt.Fprint(w, `{"code":0,"data":{"list":{"vlist":[{"bvid":"BV1"}]},"page":{"count":60}}}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"data":{"list":{"vlist":[{"bvid":"BV2"}]},"page":{"count":60}}}`)
	})
	svc := newTestBilibili(t, mux)
	info := models.CollectionInfo{Kind: models.CollectionCreator, ID: "5"}

	first, err := svc.ListMembers(context.Background(), info, "")
	require.NoError(t, err)
	assert.Equal(t, "2", first.Next)

	second, err := svc.ListMembers(context.Background(), info, first.Next)
	require.NoError(t, err)
	assert.Equal(t, []string{"BV2"}, second.Members)
	assert.Empty(t, second.Next)
}

func TestResolveCreatorID(t *testing.T) {
	svc := newTestBilibili(t, http.NotFoundHandler())

	mid, err := svc.ResolveCreatorID(context.Background(), "https://space.bilibili.com/946974/video")
	require.NoError(t, err)
	assert.Equal(t, "946974", mid)

	mid, err = svc.ResolveCreatorID(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", mid)

	_, err = svc.ResolveCreatorID(context.Background(), "not a creator")
	assert.ErrorIs(t, err, models.ErrInvalidReference)
}

func TestCookieHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n" +
		".bilibili.com\tTRUE\t/\tFALSE\t0\tSESSDATA\tabc\n" +
		"#HttpOnly_.bilibili.com\tTRUE\t/\tTRUE\t0\tbili_jct\tdef\n" +
		".youtube.com\tTRUE\t/\tFALSE\t0\tSID\tzzz\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	header, err := cookieHeader(path, "bilibili.com")
	require.NoError(t, err)
	assert.Equal(t, "SESSDATA=abc; bili_jct=def", header)

	_, err = cookieHeader(path, "example.com")
	assert.Error(t, err)
}
