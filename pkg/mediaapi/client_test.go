package mediaapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fgp-bot/fgpbot/pkg/models"
	"github.com/fgp-bot/fgpbot/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.Username = "fgp"
	cfg.APIKey = "secret"
	cfg.UserAgent = "FGPbot/1.0 (by fgp)"
	cfg.BaseURL = baseURL
	cfg.Interval = time.Millisecond
	cfg.Retry = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	return cfg
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	c, err := NewClient(testConfig(srv.URL), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig("https://example.net").Validate())
	assert.NoError(t, testConfig("").Validate())

	err := Config{BaseURL: "::nope"}.Validate()
	require.Error(t, err)
	for _, want := range []string{"user agent", "username and API key", "invalid base URL", "max requests", "max workers", "request timeout"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = NewClient(Config{})
	assert.Error(t, err)
}

func TestBuildTags(t *testing.T) {
	tests := []struct {
		name   string
		params ContentParams
		want   string
	}{
		{"empty", ContentParams{}, ""},
		{"tags only", ContentParams{Tags: []string{"fox", "solo"}}, "fox solo"},
		{"filters only", ContentParams{Rating: models.RatingSafe, FileType: models.FileTypePNG}, "rating:s type:png"},
		{
			"everything",
			ContentParams{Tags: []string{"fox"}, Rating: models.RatingExplicit, FileType: models.FileTypeGIF, SortOrder: models.SortOrder("Score"), DateRange: models.DateRange("Week")},
			"fox rating:e type:gif order:score date:week",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.BuildTags())
		})
	}
}

func TestBuildTagsDoesNotMutateInput(t *testing.T) {
	tags := make([]string, 1, 4)
	tags[0] = "fox"
	p := ContentParams{Tags: tags, Rating: models.RatingSafe}
	_ = p.BuildTags()
	assert.Equal(t, []string{"fox"}, p.Tags)
	assert.Empty(t, tags[:2][1])
}

func TestGetContentSendsAuthAndParams(t *testing.T) {
	var got *http.Request
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		writeJSON(w, http.StatusOK, `{"posts":[{"id":7,"file":{"size":10,"md5":"abc","url":"https://x/7.png","ext":"png"},"sample":{"url":"https://x/s7.png"},"rating":"s","tags":{"general":["fox"]}}]}`)
	}))

	resp, err := c.GetContent(context.Background(), 1000, ContentParams{Tags: []string{"fox"}, Rating: models.RatingSafe}, "b100")
	require.NoError(t, err)
	require.Len(t, resp.Posts, 1)
	assert.EqualValues(t, 7, resp.Posts[0].ContentID)
	assert.Equal(t, "https://x/s7.png", resp.Posts[0].SampleURL)

	require.NotNil(t, got)
	assert.Equal(t, "/posts.json", got.URL.Path)
	assert.Equal(t, "320", got.URL.Query().Get("limit"))
	assert.Equal(t, "fox rating:s", got.URL.Query().Get("tags"))
	assert.Equal(t, "b100", got.URL.Query().Get("page"))
	assert.Equal(t, "FGPbot/1.0 (by fgp)", got.Header.Get("User-Agent"))
	user, pass, ok := got.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "fgp", user)
	assert.Equal(t, "secret", pass)
}

func TestGetTags(t *testing.T) {
	var query map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		if r.URL.Query().Get("search[name_matches]") == "none*" {
			writeJSON(w, http.StatusOK, `{"tags":[]}`)
			return
		}
		writeJSON(w, http.StatusOK, `[{"id":1,"name":"fox","post_count":12,"category":5}]`)
	}))

	species := models.Category(5)
	resp, err := c.GetTags(context.Background(), TagQuery{Search: "fo*", Category: &species})
	require.NoError(t, err)
	require.Len(t, resp.Tags, 1)
	assert.Equal(t, "fox", resp.Tags[0].Name)
	assert.Equal(t, map[string]string{
		"search[order]":        "count",
		"search[hide_empty]":   "true",
		"limit":                "75",
		"search[name_matches]": "fo*",
		"search[category]":     "5",
	}, query)

	resp, err = c.GetTags(context.Background(), TagQuery{Search: "none*"})
	require.NoError(t, err)
	assert.Empty(t, resp.Tags)
}

func TestRateLimitedStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		var calls atomic.Int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))
		_, err := c.GetContent(context.Background(), 10, ContentParams{}, "")
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.EqualValues(t, 1, calls.Load(), "rate limited responses are not retried")
	}
}

func TestAPIErrorCarriesReason(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"success":false,"reason":"Access Denied"}`)
	}))

	_, err := c.GetContent(context.Background(), 10, ContentParams{}, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Access Denied", apiErr.Reason)
	assert.Equal(t, "API error 403 Forbidden: Access Denied", apiErr.Error())
}

func TestAPIErrorWithoutReason(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	_, err := c.GetContent(context.Background(), 10, ContentParams{}, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Unknown error", apiErr.Reason)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, `{"posts":[]}`)
	}))

	resp, err := c.GetContent(context.Background(), 10, ContentParams{}, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Posts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDownloadFile(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json" {
			writeJSON(w, http.StatusOK, `{}`)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG"))
	}))

	data, err := c.DownloadFile(context.Background(), srv.URL+"/file.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)

	_, err = c.DownloadFile(context.Background(), srv.URL+"/json")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestNonJSONPostsResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	_, err := c.GetContent(context.Background(), 10, ContentParams{}, "")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestMissingBaseURL(t *testing.T) {
	c, err := NewClient(testConfig(""))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetContent(context.Background(), 10, ContentParams{}, "")
	assert.ErrorIs(t, err, ErrNoBaseURL)
	_, err = c.GetTags(context.Background(), TagQuery{})
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *statusRecorder) MediaRequest(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestWorkersShareTheLoadAndClose(t *testing.T) {
	var inFlight, peak atomic.Int32
	rec := &statusRecorder{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		writeJSON(w, http.StatusOK, `{"posts":[]}`)
	}), WithRecorder(rec))

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetContent(context.Background(), 1, ContentParams{}, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	rec.mu.Lock()
	assert.Len(t, rec.statuses, 6)
	assert.Equal(t, "200", rec.statuses[0])
	rec.mu.Unlock()

	c.Close()
	c.Close()
	_, err := c.GetContent(context.Background(), 1, ContentParams{}, "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"posts":[]}`)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetContent(ctx, 1, ContentParams{}, "")
	assert.ErrorIs(t, err, context.Canceled)
}
