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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/jobsum/pkg/auth"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
)

// adminLimiter returns the shared limiter, writing an error when rate
// limiting is disabled or usage lives in client cookies.
func (s *Server) adminLimiter(w http.ResponseWriter) *ratelimit.Limiter {
	limiter := s.svc.Limiter()
	switch {
	case limiter == nil:
		writeJSONError(w, http.StatusNotImplemented, codeNotImplemented, "rate limiting is disabled")
		return nil
	case s.cookieMode():
		writeJSONError(w, http.StatusNotImplemented, codeNotImplemented,
			"usage is kept in client cookies and cannot be inspected or reset server-side")
		return nil
	}
	return limiter
}

func (s *Server) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ratelimit.ErrInvalidIdentity):
		writeJSONError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, ratelimit.ErrResetUnsupported):
		writeJSONError(w, http.StatusNotImplemented, codeNotImplemented, err.Error())
	default:
		slog.Error("Admin request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, codeInternalError, err.Error())
	}
}

func subject(r *http.Request) string {
	if claims := auth.GetClaims(r); claims != nil {
		return claims.Subject
	}
	return ""
}

// handleAdminUsage reports any identity's usage from the shared store.
func (s *Server) handleAdminUsage(w http.ResponseWriter, r *http.Request) {
	limiter := s.adminLimiter(w)
	if limiter == nil {
		return
	}

	usage, err := limiter.Usage(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUsageResponse(usage))
}

// handleAdminReset deletes an identity's usage events.
func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	limiter := s.adminLimiter(w)
	if limiter == nil {
		return
	}

	id := chi.URLParam(r, "identity")
	if err := limiter.Reset(r.Context(), id); err != nil {
		s.writeAdminError(w, err)
		return
	}
	slog.Info("Usage reset", "identity", id, "by", subject(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminPrune removes every expired event.
func (s *Server) handleAdminPrune(w http.ResponseWriter, r *http.Request) {
	limiter := s.adminLimiter(w)
	if limiter == nil {
		return
	}

	removed, err := limiter.Prune(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	slog.Info("Pruned expired usage", "removed", removed, "by", subject(r))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
