package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler adapts h to API Gateway HTTP API (payload v2) events.
func LambdaHandler(h http.Handler) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		req, err := requestFromEvent(ctx, event)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return responseFromRecorder(rec), nil
	}
}

func requestFromEvent(ctx context.Context, event events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	var body io.Reader = strings.NewReader(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding request body: %w", err)
		}
		body = bytes.NewReader(decoded)
	}

	path := event.RawPath
	if path == "" {
		path = "/"
	}
	target := path
	if event.RawQueryString != "" {
		target += "?" + event.RawQueryString
	}

	method := event.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	if len(event.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(event.Cookies, "; "))
	}
	if host := event.Headers["host"]; host != "" {
		req.Host = host
	}
	if ip := event.RequestContext.HTTP.SourceIP; ip != "" {
		req.RemoteAddr = net.JoinHostPort(ip, "0")
	}
	if event.RequestContext.RequestID != "" && req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", event.RequestContext.RequestID)
	}
	return req, nil
}

func responseFromRecorder(rec *httptest.ResponseRecorder) events.APIGatewayV2HTTPResponse {
	res := rec.Result()
	headers := make(map[string]string, len(res.Header))
	for k, v := range res.Header {
		if k == "Set-Cookie" {
			continue
		}
		headers[k] = strings.Join(v, ",")
	}

	body := rec.Body.Bytes()
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: res.StatusCode,
		Headers:    headers,
		Cookies:    res.Header.Values("Set-Cookie"),
	}
	if res.Header.Get("Content-Encoding") != "" || !utf8.Valid(body) {
		out.Body = base64.StdEncoding.EncodeToString(body)
		out.IsBase64Encoded = true
	} else {
		out.Body = string(body)
	}
	return out
}
