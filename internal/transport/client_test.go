package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/ratelimit"
	"github.com/bcnelson/ipsync/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticators(t *testing.T) {
	tests := []struct {
		name  string
		auth  transport.Authenticator
		check func(t *testing.T, r *http.Request)
	}{
		{"basic", transport.BasicAuth{Username: "u", Password: "p"}, func(t *testing.T, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "u", user)
			assert.Equal(t, "p", pass)
		}},
		{"bearer", transport.BearerAuth{Token: "tok"}, func(t *testing.T, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		}},
		{"header", transport.HeaderAuth{Header: "Api-Key", Value: "k"}, func(t *testing.T, r *http.Request) {
			assert.Equal(t, "k", r.Header.Get("Api-Key"))
			assert.Empty(t, r.Header.Get("Authorization"))
		}},
		{"query", transport.QueryAuth{Param: "key", Value: "k"}, func(t *testing.T, r *http.Request) {
			assert.Equal(t, "k", r.URL.Query().Get("key"))
			assert.Equal(t, "v", r.URL.Query().Get("existing"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _ := url.Parse("https://example.com/api?existing=v")
			req := &http.Request{URL: u, Header: make(http.Header)}
			tt.auth.Apply(req)
			tt.check(t, req)
		})
	}
}

func TestDo_SuccessDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/items", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"10.0.0.1"}, in)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	var out struct {
		ID int `json:"id"`
	}
	c := transport.New(srv.URL+"/", nil)
	resp, err := c.Do(context.Background(), http.MethodPost, "/api/items", url.Values{"page": {"2"}}, []string{"10.0.0.1"}, &out)

	require.NoError(t, err)
	assert.Equal(t, domain.ResponseSuccess, resp.Status)
	assert.Equal(t, http.StatusCreated, resp.HTTPStatus)
	assert.Equal(t, 7, out.ID)
}

func TestDo_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := transport.New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/", nil, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.ResponseRateLimited, resp.Status)
	assert.Equal(t, 12*time.Second, resp.RetryAfter)
}

func TestDo_ErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json message", `{"message": "site not found"}`, "site not found"},
		{"json error", `{"error": "invalid key"}`, "invalid key"},
		{"errors array", `{"errors": [{"code": 9109, "message": "bad token"}]}`, "bad token"},
		{"plain text", "  nope \n", "nope"},
		{"empty", "", "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := transport.New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/", nil, nil, nil)

			require.NoError(t, err)
			assert.Equal(t, domain.ResponseError, resp.Status)
			assert.Equal(t, http.StatusNotFound, resp.HTTPStatus)
			assert.Equal(t, tt.want, resp.Message)
		})
	}
}

func TestDo_AbsoluteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/next", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := transport.New("http://unused.invalid", nil).Do(context.Background(), http.MethodGet, srv.URL+"/next", nil, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.ResponseSuccess, resp.Status)
}

func TestDo_ConnectionErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := transport.New(addr, nil).Do(context.Background(), http.MethodGet, "/", nil, nil, nil)

	require.Error(t, err)
	assert.True(t, ratelimit.IsTransient(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, transport.ParseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("-3", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("soon", now))
	assert.Equal(t, 30*time.Second, transport.ParseRetryAfter("Mon, 01 Jan 2024 12:00:30 GMT", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("Mon, 01 Jan 2024 11:00:00 GMT", now))
}
