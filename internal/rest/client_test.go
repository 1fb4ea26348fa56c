package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	meHits   atomic.Int32
	token    string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.RequestURI(), Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != f.token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /users/@me", authed(func(w http.ResponseWriter, r *http.Request) {
		f.meHits.Add(1)
		time.Sleep(20 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(User{ID: "42", Username: "me", Discriminator: "0001"})
	}))
	mux.HandleFunc("GET /users/@me/channels", authed(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Channel{{ID: "1", Type: 1}, {ID: "2", Type: 3}, {ID: "3", Type: 1}})
	}))
	mux.HandleFunc("GET /channels/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_ = json.NewEncoder(w).Encode([]Message{{ID: "m2", Author: User{ID: "7"}}, {ID: "m1", Author: User{ID: "42"}}})
	}))
	mux.HandleFunc("POST /channels/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"new"}`))
	}))
	mux.HandleFunc("DELETE /channels/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusOK)
	}))
	mux.HandleFunc("POST /hook", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /channels/broken/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Missing Access"}`))
	})
	return mux
}

func (f *fakeAPI) recorded() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{token: "secret"}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient("secret", srv.URL), f, srv
}

func TestValidateToken(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.ValidateToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	c.SetToken("wrong")
	ok, err = c.ValidateToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateTokenByStatus(t *testing.T) {
	var code atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("tok", srv.URL)
	ctx := context.Background()

	for _, rejected := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		code.Store(int32(rejected))
		ok, err := c.ValidateToken(ctx)
		require.NoError(t, err, "status %d", rejected)
		assert.False(t, ok)
	}

	// по 429 и 5xx о токене ничего не известно
	for _, unknown := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		code.Store(int32(unknown))
		ok, err := c.ValidateToken(ctx)
		assert.False(t, ok)
		var se *StatusError
		require.ErrorAs(t, err, &se, "status %d", unknown)
		assert.Equal(t, unknown, se.Code)
	}
}

func TestCurrentUserCachedAndDeduplicated(t *testing.T) {
	c, f, _ := newTestClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := c.CurrentUser(ctx)
			assert.NoError(t, err)
			assert.Equal(t, "42", u.ID)
		}()
	}
	wg.Wait()
	_, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.meHits.Load())

	c.SetToken("secret")
	_, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.meHits.Load())
}

func TestDMChannelsFiltersType(t *testing.T) {
	c, _, _ := newTestClient(t)
	chs, err := c.DMChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, chs, 2)
	assert.Equal(t, "1", chs[0].ID)
	assert.Equal(t, "3", chs[1].ID)
}

func TestChannelMessages(t *testing.T) {
	c, f, _ := newTestClient(t)
	msgs, err := c.ChannelMessages(context.Background(), "99", 1)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "7", msgs[0].Author.ID)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/channels/99/messages?limit=1", reqs[0].Path)
}

func TestPostMessageSendsAuthAndBody(t *testing.T) {
	c, f, _ := newTestClient(t)
	require.NoError(t, c.PostMessage(context.Background(), "123", "hello\nworld"))

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/channels/123/messages", reqs[0].Path)
	assert.Equal(t, "secret", reqs[0].Auth)
	assert.Equal(t, "hello\nworld", reqs[0].Body["content"])
}

func TestPostMessageStatusError(t *testing.T) {
	c, _, _ := newTestClient(t)
	err := c.PostMessage(context.Background(), "broken", "x")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Contains(t, se.Body, "Missing Access")
}

func TestUnauthorized(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.SetToken("nope")
	err := c.PostMessage(context.Background(), "1", "x")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteChannel(t *testing.T) {
	c, f, _ := newTestClient(t)
	require.NoError(t, c.DeleteChannel(context.Background(), "55"))
	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/channels/55", reqs[0].Path)
}

func TestPostWebhookPrefixesPingWithoutAuth(t *testing.T) {
	c, f, srv := newTestClient(t)
	require.NoError(t, c.PostWebhook(context.Background(), srv.URL+"/hook", "<@&9>", "sent"))
	require.NoError(t, c.PostWebhook(context.Background(), srv.URL+"/hook", "", "plain"))

	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Auth)
	assert.Equal(t, "<@&9> sent", reqs[0].Body["content"])
	assert.Equal(t, "plain", reqs[1].Body["content"])
}

func TestContextCancel(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchCurrentUser(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserTag(t *testing.T) {
	assert.Equal(t, "bob#0042", User{Username: "bob", Discriminator: "0042"}.Tag())
}
