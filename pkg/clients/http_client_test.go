package clients

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
)

const testBase = "https://api.test.local"

func newTestClient(t *testing.T, maxRetries int, auth Authenticator) *APIClient {
	t.Helper()
	cfg := &HTTPConfig{
		BaseURL:        testBase,
		UserAgent:      "test",
		MaxRetries:     maxRetries,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	client := NewAPIClient(cfg, auth, zap.NewNop())
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestGetSendsParamsAndAPIKey(t *testing.T) {
	client := newTestClient(t, 0, APIKeyAuth{Key: "k-123"})

	var got url.Values
	httpmock.RegisterResponder(http.MethodGet, testBase+"/deals/v1/deal/paged",
		func(req *http.Request) (*http.Response, error) {
			got = req.URL.Query()
			return httpmock.NewStringResponse(200, `{"deals":[]}`), nil
		})

	params := url.Values{}
	params.Add("properties", "dealname")
	params.Add("properties", "amount")
	params.Set("limit", "250")

	body, err := client.Get(context.Background(), "deals/v1/deal/paged", params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deals":[]}`, string(body))
	assert.Equal(t, "k-123", got.Get(APIKeyParam))
	assert.Equal(t, []string{"dealname", "amount"}, got["properties"])
	assert.Equal(t, "250", got.Get("limit"))
}

func TestGetBearerAuth(t *testing.T) {
	client := newTestClient(t, 0, BearerAuth{Token: "pat-1"})

	httpmock.RegisterResponder(http.MethodGet, testBase+"/companies/v2/companies/paged",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer pat-1" {
				return httpmock.NewStringResponse(401, ""), nil
			}
			assert.Empty(t, req.URL.Query().Get(APIKeyParam))
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	_, err := client.Get(context.Background(), "companies/v2/companies/paged", nil)
	require.NoError(t, err)
}

func TestGetRetriesTransientStatuses(t *testing.T) {
	client := newTestClient(t, 5, nil)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/flaky",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(429, "slow down"),
			httpmock.NewStringResponse(502, "bad gateway"),
			httpmock.NewStringResponse(504, "timeout"),
			httpmock.NewStringResponse(200, `{"ok":true}`),
		}))

	before := testutil.ToFloat64(metrics.HTTPRetries.WithLabelValues("flaky", "rate_limit"))
	body, err := client.Get(context.Background(), "flaky", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, 4, httpmock.GetTotalCallCount())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRetries.WithLabelValues("flaky", "rate_limit")))
}

func TestGetRetryBound(t *testing.T) {
	const maxRetries = 3
	client := newTestClient(t, maxRetries, nil)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/down",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := client.Get(context.Background(), "down", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransient), "got %v", err)
	assert.Equal(t, maxRetries+1, httpmock.GetTotalCallCount())
}

func TestGetNetworkErrorIsRetried(t *testing.T) {
	client := newTestClient(t, 2, nil)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/net",
		httpmock.NewErrorResponder(assert.AnError))

	_, err := client.Get(context.Background(), "net", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestGetTimeoutIsRetried(t *testing.T) {
	client := newTestClient(t, 1, nil)
	before := testutil.ToFloat64(metrics.HTTPRetries.WithLabelValues("timeout-path", "timeout"))

	httpmock.RegisterResponder(http.MethodGet, testBase+"/timeout-path",
		httpmock.NewErrorResponder(timeoutError{}))

	_, err := client.Get(context.Background(), "timeout-path", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, errors.HasType(err, errors.ErrorTypeTimeout), "got %v", err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRetries.WithLabelValues("timeout-path", "timeout")))
}

func TestGetAuthErrorsAreNotRetried(t *testing.T) {
	for _, code := range []int{401, 403} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			client := newTestClient(t, 5, APIKeyAuth{Key: "bad"})
			httpmock.RegisterResponder(http.MethodGet, testBase+"/secure",
				httpmock.NewStringResponder(code, `{"status":"error"}`))

			_, err := client.Get(context.Background(), "secure", nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication), "got %v", err)
			assert.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestGetOtherStatusIsProtocolError(t *testing.T) {
	client := newTestClient(t, 5, nil)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/missing",
		httpmock.NewStringResponder(404, `{"message":"resource not found"}`))

	_, err := client.Get(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "resource not found")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestGetCancelledContext(t *testing.T) {
	client := newTestClient(t, 5, nil)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/slow",
		httpmock.NewStringResponder(503, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnippetIsBounded(t *testing.T) {
	long := make([]byte, maxSnippet*2)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, snippet(long), maxSnippet+3)
	assert.Equal(t, "short", snippet([]byte("short")))
}

func TestOAuthAuth(t *testing.T) {
	client := newTestClient(t, 0, nil)
	client.SetAuthenticator(NewOAuthAuth(context.Background(), OAuthSettings{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		TokenURL:     testBase + "/oauth/v1/token",
	}, client.HTTPClient()))

	httpmock.RegisterResponder(http.MethodPost, testBase+"/oauth/v1/token",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "refresh_token", req.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh", req.PostForm.Get("refresh_token"))
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"access_token": "access-1",
				"token_type":   "bearer",
				"expires_in":   1800,
			})
		})
	httpmock.RegisterResponder(http.MethodGet, testBase+"/deals/v1/deal/paged",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer access-1", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), "deals/v1/deal/paged", nil)
		require.NoError(t, err)
	}
	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+testBase+"/oauth/v1/token"])
}

func TestOAuthRefreshFailureIsAuthError(t *testing.T) {
	client := newTestClient(t, 3, nil)
	client.SetAuthenticator(NewOAuthAuth(context.Background(), OAuthSettings{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "expired",
		TokenURL:     testBase + "/oauth/v1/token",
	}, client.HTTPClient()))

	httpmock.RegisterResponder(http.MethodPost, testBase+"/oauth/v1/token",
		httpmock.NewStringResponder(400, `{"error":"invalid_grant"}`))

	_, err := client.Get(context.Background(), "deals/v1/deal/paged", nil)
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
