package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"apiorch/pkg/log"
	"apiorch/pkg/models"
	"apiorch/pkg/orchestrator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// HeaderPreferredEndpoint names an endpoint to try first.
	HeaderPreferredEndpoint = "X-Preferred-Endpoint"
	// HeaderServedBy reports which endpoint produced the response.
	HeaderServedBy = "X-Served-By"

	maxProxyBody = 32 << 20
)

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Host",
	HeaderPreferredEndpoint,
}

// proxyHandler forwards /proxy/<path> through the orchestrator and relays the upstream answer.
func (s *Server) proxyHandler(ctx echo.Context) error {
	httpReq := ctx.Request()

	body, err := io.ReadAll(io.LimitReader(httpReq.Body, maxProxyBody))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Failed to read request body",
		})
	}

	requestID := httpReq.Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	path := "/" + ctx.Param("*")
	if query := ctx.QueryString(); query != "" {
		path += "?" + query
	}

	req := models.Request{
		ID:      requestID,
		Path:    path,
		Method:  httpReq.Method,
		Headers: forwardHeaders(httpReq.Header),
		Body:    body,
	}
	req.Headers.Set(echo.HeaderXRequestID, requestID)

	ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)

	resp, err := s.orch.MakeRequest(httpReq.Context(), req, httpReq.Header.Get(HeaderPreferredEndpoint))
	if err != nil {
		status := statusFor(err)
		log.Warn().Err(err).Str("request_id", requestID).Int("status", status).Msg("Proxy request failed")
		return ctx.JSON(status, map[string]string{
			"error":      err.Error(),
			"request_id": requestID,
		})
	}

	header := ctx.Response().Header()
	for key, values := range resp.Headers {
		if isHopHeader(key) {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}
	header.Set(HeaderServedBy, resp.Endpoint)

	return ctx.Blob(resp.StatusCode, resp.Headers.Get(echo.HeaderContentType), resp.Body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNoHealthyEndpoint), errors.Is(err, orchestrator.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, orchestrator.ErrAllRetriesExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func forwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}

func isHopHeader(key string) bool {
	canonical := http.CanonicalHeaderKey(key)
	for _, h := range hopHeaders {
		if canonical == http.CanonicalHeaderKey(h) {
			return true
		}
	}
	return false
}
