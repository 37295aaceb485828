// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
	"github.com/kadirpekel/jobsum/pkg/summarizer"
)

// Error codes returned by the JSON API.
const (
	codeUnknownIdentity  = "unknown_identity"
	codeEmptyInput       = "empty_input"
	codeRateLimited      = "rate_limit_exceeded"
	codeGenerationFailed = "generation_failed"
	codeInternalError    = "internal_error"
	codeInvalidRequest   = "invalid_request"
	codeInvalidDocument  = "invalid_document"
	codePayloadTooLarge  = "payload_too_large"
	codeNotImplemented   = "not_implemented"
)

// failure is an error translated for the caller.
type failure struct {
	Status  int
	Code    string
	Message string
}

// documentError reports an upload that could not be turned into text.
type documentError struct {
	err error
}

func (e *documentError) Error() string {
	return e.err.Error()
}

func (e *documentError) Unwrap() error {
	return e.err
}

// describe maps err to a status, an API code and a message for people.
func (s *Server) describe(err error) failure {
	var (
		limited  *ratelimit.RateLimitError
		genErr   *summarizer.GenerationError
		tooLarge *http.MaxBytesError
		docErr   *documentError
	)

	switch {
	case errors.Is(err, summarizer.ErrUnknownIdentity):
		message := "We could not identify your connection, so this request was not processed."
		if s.limitCfg.Identity.Strategy == config.IdentityCookie {
			message = "Cookies are not available. Please enable them in your browser."
		}
		return failure{http.StatusBadRequest, codeUnknownIdentity, message}
	case errors.Is(err, summarizer.ErrEmptyInput):
		return failure{http.StatusBadRequest, codeEmptyInput, "Please paste a job description first."}
	case errors.As(err, &limited):
		return failure{http.StatusTooManyRequests, codeRateLimited, s.rateLimitMessage(limited.Decision)}
	case errors.As(err, &tooLarge):
		return failure{http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			fmt.Sprintf("The upload is too large. The maximum size is %s.", formatBytes(tooLarge.Limit))}
	case errors.As(err, &docErr):
		return failure{http.StatusBadRequest, codeInvalidDocument, "The uploaded document could not be read: " + docErr.Error()}
	case errors.As(err, &genErr):
		return failure{http.StatusBadGateway, codeGenerationFailed, "An error occurred: " + err.Error()}
	default:
		return failure{http.StatusInternalServerError, codeInternalError, "An error occurred: " + err.Error()}
	}
}

// rateLimitMessage renders the limit and window of the denying policy.
func (s *Server) rateLimitMessage(d *ratelimit.Decision) string {
	limit, window := 0, time.Duration(0)
	if d != nil {
		limit, window = d.Limit, d.Window
	} else if l := s.svc.Limiter(); l != nil {
		p := l.Policy()
		limit, window = p.Limit, p.Window
	}

	noun := "summaries"
	if limit == 1 {
		noun = "summary"
	}
	in, per := describeWindow(window)
	return fmt.Sprintf("Rate limit exceeded. Please try again in %s. (Limit: %d %s per %s)", in, limit, noun, per)
}

// describeWindow phrases a window for "try again in ..." and "per ...".
func describeWindow(d time.Duration) (in, per string) {
	units := []struct {
		size    time.Duration
		single  string
		article string
	}{
		{24 * time.Hour, "day", "a"},
		{time.Hour, "hour", "an"},
		{time.Minute, "minute", "a"},
		{time.Second, "second", "a"},
	}
	for _, u := range units {
		if d < u.size || d%u.size != 0 {
			continue
		}
		n := int64(d / u.size)
		if n == 1 {
			return u.article + " " + u.single, u.single
		}
		plural := fmt.Sprintf("%d %ss", n, u.single)
		return plural, plural
	}
	return d.String(), d.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// setRateLimitHeaders describes d in X-RateLimit-* and Retry-After headers.
func setRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	if d == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	if d.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
	}
}

// usageResponse is the wire form of a Decision.
type usageResponse struct {
	Identity          string  `json:"identity"`
	Allowed           bool    `json:"allowed"`
	Count             int     `json:"count"`
	Limit             int     `json:"limit"`
	Remaining         int     `json:"remaining"`
	WindowSeconds     float64 `json:"window_seconds"`
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
	ResetAt           *int64  `json:"reset_at,omitempty"`
}

func newUsageResponse(d *ratelimit.Decision) *usageResponse {
	if d == nil {
		return nil
	}
	resp := &usageResponse{
		Identity:          d.Identity,
		Allowed:           d.Allowed,
		Count:             d.Count,
		Limit:             d.Limit,
		Remaining:         d.Remaining,
		WindowSeconds:     d.Window.Seconds(),
		RetryAfterSeconds: d.RetryAfter.Seconds(),
	}
	if !d.ResetAt.IsZero() {
		reset := d.ResetAt.Unix()
		resp.ResetAt = &reset
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeFailure writes err as a JSON error with rate limit headers when
// the limiter denied the request.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	f := s.describe(err)
	if f.Status >= http.StatusInternalServerError {
		slog.Error("Request failed", "code", f.Code, "error", err)
	}
	setRateLimitHeaders(w, ratelimit.DecisionFromError(err))
	writeJSONError(w, f.Status, f.Code, f.Message)
}
