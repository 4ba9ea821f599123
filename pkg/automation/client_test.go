package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snscraper/pkg/errors"
	"snscraper/pkg/login"
	"snscraper/pkg/timeshard"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, 5*time.Second, nil)
	return client, server
}

func TestCreateLoginSession(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login/session", r.URL.Path)
		json.NewEncoder(w).Encode(LoginSessionInfo{
			SessionID: "qr-1",
			QRCodeURL: "https://platform.example/qr/qr-1",
		})
	}))
	defer server.Close()

	info, err := client.CreateLoginSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "qr-1", info.SessionID)
	assert.Equal(t, "https://platform.example/qr/qr-1", info.QRCodeURL)
}

func TestCreateLoginSessionEmptyID(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LoginSessionInfo{})
	}))
	defer server.Close()

	_, err := client.CreateLoginSession(context.Background())
	assert.Error(t, err)
}

func TestCheckStateMapping(t *testing.T) {
	cases := []struct {
		bridgeState string
		want        login.CheckState
	}{
		{"scanned", login.CheckScanned},
		{"confirmed", login.CheckConfirmed},
		{"rejected", login.CheckRejected},
		{"pending", login.CheckUnchanged},
		{"unchanged", login.CheckUnchanged},
		{"", login.CheckUnchanged},
	}

	for _, tc := range cases {
		t.Run("state "+tc.bridgeState, func(t *testing.T) {
			client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/login/status", r.URL.Path)
				assert.Equal(t, "qr-1", r.URL.Query().Get("session_id"))
				json.NewEncoder(w).Encode(map[string]interface{}{"state": tc.bridgeState})
			}))
			defer server.Close()

			result, err := client.Check(context.Background(), "qr-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.State)
		})
	}
}

func TestCheckConfirmedCarriesCookies(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":    "confirmed",
			"identity": "alice",
			"cookies":  map[string]string{"sid": "abc"},
		})
	}))
	defer server.Close()

	result, err := client.Check(context.Background(), "qr-1")
	require.NoError(t, err)
	assert.Equal(t, login.CheckConfirmed, result.State)
	assert.Equal(t, "alice", result.Identity)
	assert.Equal(t, map[string]string{"sid": "abc"}, result.Cookies)
}

func TestCheckUnknownState(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"state": "sideways"})
	}))
	defer server.Close()

	_, err := client.Check(context.Background(), "qr-1")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login/validate", r.URL.Path)

		var req validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc", req.Cookies["sid"])

		json.NewEncoder(w).Encode(validateResponse{
			Identity:    "alice",
			DisplayName: "Alice",
			Valid:       true,
		})
	}))
	defer server.Close()

	identity, displayName, err := client.Validate(context.Background(), map[string]string{"sid": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
	assert.Equal(t, "Alice", displayName)
}

func TestValidateRejected(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validateResponse{Valid: false, Reason: "cookies expired"})
	}))
	defer server.Close()

	_, _, err := client.Validate(context.Background(), map[string]string{"sid": "stale"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestFetchPage(t *testing.T) {
	shard := timeshard.Shard{
		Start: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
	}

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/page", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "golang", q.Get("keyword"))
		assert.Equal(t, "2026-08-20T00:00:00Z", q.Get("start"))
		assert.Equal(t, "3", q.Get("page"))
		json.NewEncoder(w).Encode(pageResponse{Count: 20, HasMore: true})
	}))
	defer server.Close()

	result, err := client.FetchPage(context.Background(), "golang", shard, 3)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Count)
	assert.True(t, result.HasMore)
}

func TestFetchPageCaptcha(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pageResponse{Captcha: true})
	}))
	defer server.Close()

	_, err := client.FetchPage(context.Background(), "golang", timeshard.Shard{}, 1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCaptcha))
}

func TestCountResults(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/count", r.URL.Path)
		json.NewEncoder(w).Encode(pageResponse{Total: 4242})
	}))
	defer server.Close()

	n, err := client.CountResults(context.Background(),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), "golang")
	require.NoError(t, err)
	assert.Equal(t, 4242, n)
}

func TestStatusCodeClassification(t *testing.T) {
	cases := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusUnauthorized, errors.ErrorTypeAuth},
		{http.StatusForbidden, errors.ErrorTypeAuth},
		{http.StatusTooManyRequests, errors.ErrorTypeRateLimit},
		{http.StatusInternalServerError, errors.ErrorTypeNetwork},
		{http.StatusBadGateway, errors.ErrorTypeNetwork},
	}

	for _, tc := range cases {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		_, err := client.Check(context.Background(), "qr-1")
		require.Error(t, err, "status %d", tc.status)
		assert.True(t, errors.IsType(err, tc.want), "status %d should map to %s", tc.status, tc.want)
		server.Close()
	}
}

func TestCustomHeadersSent(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "sid=abc", r.Header.Get("Cookie"))
		json.NewEncoder(w).Encode(map[string]interface{}{"state": "pending"})
	}))
	defer server.Close()

	client.SetHeader("User-Agent", "test-agent")
	client.SetHeader("Cookie", "sid=abc")

	_, err := client.Check(context.Background(), "qr-1")
	require.NoError(t, err)
}

func TestNetworkFailureIsTyped(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil)

	_, err := client.Check(context.Background(), "qr-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
}
