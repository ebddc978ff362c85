package core

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v2Event(method, path, query string) events.APIGatewayV2HTTPRequest {
	ev := events.APIGatewayV2HTTPRequest{
		RawPath:        path,
		RawQueryString: query,
		Headers:        map[string]string{"host": "api.example.test"},
	}
	ev.RequestContext.HTTP.Method = method
	ev.RequestContext.HTTP.SourceIP = "198.51.100.9"
	ev.RequestContext.RequestID = "apigw-123"
	return ev
}

func TestLambdaHandler_RequestMapping(t *testing.T) {
	var got *http.Request
	var body []byte
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	ev := v2Event(http.MethodPost, "/v1/suitability", "units=kt")
	ev.Body = base64.StdEncoding.EncodeToString([]byte(`{"aircraft":"light"}`))
	ev.IsBase64Encoded = true
	ev.Cookies = []string{"session=x"}

	resp, err := LambdaHandler(h)(t.Context(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/suitability", got.URL.Path)
	assert.Equal(t, "kt", got.URL.Query().Get("units"))
	assert.Equal(t, "api.example.test", got.Host)
	assert.Equal(t, "198.51.100.9:0", got.RemoteAddr)
	assert.Equal(t, "apigw-123", got.Header.Get("X-Request-Id"))
	assert.Equal(t, "session=x", got.Header.Get("Cookie"))
	assert.JSONEq(t, `{"aircraft":"light"}`, string(body))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Cookies)
	assert.NotContains(t, resp.Headers, "Set-Cookie")
	assert.False(t, resp.IsBase64Encoded)
	assert.JSONEq(t, `{"ok":true}`, resp.Body)
}

func TestLambdaHandler_ClientRequestIDWins(t *testing.T) {
	var id string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { id = r.Header.Get("X-Request-Id") })

	ev := v2Event(http.MethodGet, "/health", "")
	ev.Headers["x-request-id"] = "client-7"
	_, err := LambdaHandler(h)(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, "client-7", id)
}

func TestLambdaHandler_BadBase64(t *testing.T) {
	ev := v2Event(http.MethodPost, "/", "")
	ev.Body = "%%%"
	ev.IsBase64Encoded = true
	_, err := LambdaHandler(http.NotFoundHandler())(t.Context(), ev)
	assert.Error(t, err)
}

func TestLambdaHandler_CompressedBodyIsBase64(t *testing.T) {
	s := newTestServer(t)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router, _ func(http.Handler) http.Handler) {
		r.Get("/big", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: bytes.Repeat([]byte("a"), 4096)})
		})
	})
	s.MountRoutes()

	ev := v2Event(http.MethodGet, "/v1/big", "")
	ev.Headers["accept-encoding"] = "gzip"
	resp, err := LambdaHandler(s.Handler())(t.Context(), ev)
	require.NoError(t, err)

	require.True(t, resp.IsBase64Encoded)
	assert.Equal(t, "gzip", resp.Headers["Content-Encoding"])

	raw, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"data":`)
}
