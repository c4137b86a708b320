package apiclient

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Meta describes the request a response belongs to.
type Meta struct {
	Timestamp  string      `json:"timestamp"`
	Path       string      `json:"path"`
	Method     string      `json:"method"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination is present on paginated list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Response is the ERP API success envelope.
type Response[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Meta    Meta `json:"meta"`
}

// ErrorResponse is the ERP API failure envelope.
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta Meta `json:"meta"`
}

// newStatusError consumes and closes resp.Body, extracting the API's error
// message when the body is an error envelope.
func newStatusError(req *http.Request, resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()

	se := &StatusError{
		Method:     req.Method,
		URL:        redactedURL(req),
		StatusCode: resp.StatusCode,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return se
	}

	var env ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
	}
	return se
}

// decodeResponse decodes a 2xx body into out, or turns a non-2xx response
// into a *StatusError. resp.Body is always closed.
func decodeResponse(req *http.Request, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(req, resp)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func redactedURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return req.URL.Redacted()
}
