package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const testToken = "registry-token"

func sellerJSON(t *testing.T, paths map[string]any) string {
	t.Helper()

	body := `{}`
	base := map[string]any{
		"sellerId":         "s-42",
		"storeName":        "Toko Kita",
		"storeSlug":        "toko-kita",
		"category":         "fashion",
		"isFoundingSeller": true,
		"agentApiKey":      "agent-key",
	}
	for key, value := range base {
		if _, overridden := paths[key]; !overridden {
			paths[key] = value
		}
	}

	var err error
	for key, value := range paths {
		if value == nil {
			continue
		}
		body, err = sjson.Set(body, key, value)
		require.NoError(t, err)
	}

	return body
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/", testToken, time.Second)
	require.NoError(t, err)

	return client
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("not a url", "", 0)
	require.ErrorIs(t, err, agent.ErrValidation)

	client, err := NewClient("https://api.nemu.id/", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, "https://api.nemu.id/api/agent/sellers/s-42", client.sellerURL("s-42"))
}

func TestClient_GetSeller(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		status   int
		body     func(t *testing.T) string
		wantErr  error
		wantName string
	}{
		{
			name:     "bare object",
			status:   http.StatusOK,
			body:     func(t *testing.T) string { return sellerJSON(t, map[string]any{}) },
			wantName: "Toko Kita",
		},
		{
			name:   "seller envelope",
			status: http.StatusOK,
			body: func(t *testing.T) string {
				body, err := sjson.SetRaw(`{}`, "seller", sellerJSON(t, map[string]any{}))
				require.NoError(t, err)
				return body
			},
			wantName: "Toko Kita",
		},
		{
			name:   "data envelope",
			status: http.StatusOK,
			body: func(t *testing.T) string {
				body, err := sjson.SetRaw(`{"ok":true}`, "data", sellerJSON(t, map[string]any{}))
				require.NoError(t, err)
				return body
			},
			wantName: "Toko Kita",
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    func(*testing.T) string { return `{"error":"seller not found"}` },
			wantErr: agent.ErrNotFound,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    func(*testing.T) string { return `bad gateway` },
			wantErr: agent.ErrUpstream,
		},
		{
			name:    "malformed json",
			status:  http.StatusOK,
			body:    func(*testing.T) string { return `{"storeName":` },
			wantErr: agent.ErrUpstream,
		},
		{
			name:    "array payload",
			status:  http.StatusOK,
			body:    func(*testing.T) string { return `[]` },
			wantErr: agent.ErrUpstream,
		},
		{
			name:    "missing store slug",
			status:  http.StatusOK,
			body:    func(t *testing.T) string { return sellerJSON(t, map[string]any{"storeSlug": nil}) },
			wantErr: agent.ErrValidation,
		},
		{
			name:    "different seller",
			status:  http.StatusOK,
			body:    func(t *testing.T) string { return sellerJSON(t, map[string]any{"sellerId": "s-43"}) },
			wantErr: agent.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body(t)
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/agent/sellers/s-42", r.URL.Path)
				assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, body)
			})

			profile, err := client.GetSeller(ctx, "s-42")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, agent.SellerID("s-42"), profile.SellerID)
			assert.Equal(t, tt.wantName, profile.StoreName)
			assert.Equal(t, "toko-kita", profile.StoreSlug)
			assert.True(t, profile.IsFoundingSeller)
			assert.Empty(t, profile.WalletAddress)
		})
	}
}

func TestClient_GetSeller_MissingSellerIDDefaultsToRequested(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"storeName":"Toko Kita","storeSlug":"toko-kita"}`)
	})

	profile, err := client.GetSeller(context.Background(), "s-42")
	require.NoError(t, err)
	assert.Equal(t, agent.SellerID("s-42"), profile.SellerID)
}

func TestClient_GetSeller_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(server.URL, testToken, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = client.GetSeller(context.Background(), "s-42")
	require.ErrorIs(t, err, agent.ErrUpstream)
}

func TestClient_GetSeller_CallerContext(t *testing.T) {
	newBlockingClient := func(t *testing.T) *Client {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(server.Close)
		t.Cleanup(func() { close(release) })

		client, err := NewClient(server.URL, testToken, time.Minute)
		require.NoError(t, err)
		return client
	}

	t.Run("deadline is an upstream failure", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := newBlockingClient(t).GetSeller(ctx, "s-42")
		require.ErrorIs(t, err, agent.ErrUpstream)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := newBlockingClient(t).GetSeller(ctx, "s-42")
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, agent.ErrUpstream)
	})
}

func TestClient_GetSeller_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	client, err := NewClient(serverURL, testToken, time.Second)
	require.NoError(t, err)

	_, err = client.GetSeller(context.Background(), "s-42")
	require.ErrorIs(t, err, agent.ErrUpstream)
}

func TestClient_GetSeller_InvalidID(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		assert.Fail(t, "registry must not be called")
	})

	_, err := client.GetSeller(context.Background(), "../etc")
	require.ErrorIs(t, err, agent.ErrValidation)
}

func TestClient_ReportStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		calls := 0
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/api/agent/sellers/s-42/status", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Equal(t, "active", gjson.GetBytes(body, "agentStatus").String())
			assert.Equal(t, int64(4000), gjson.GetBytes(body, "agentPort").Int())
			assert.Equal(t, "host-a", gjson.GetBytes(body, "agentServerId").String())

			w.WriteHeader(http.StatusNoContent)
		})

		err := client.ReportStatus(ctx, "s-42", agent.StatusReport{
			AgentStatus:   agent.AgentStatusActive,
			AgentPort:     4000,
			AgentServerID: "host-a",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("failure is not retried", func(t *testing.T) {
		calls := 0
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		err := client.ReportStatus(ctx, "s-42", agent.StatusReport{AgentStatus: agent.AgentStatusActive, AgentPort: 4000})
		require.ErrorIs(t, err, agent.ErrUpstream)
		assert.Equal(t, 1, calls)
	})
}
