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
	"net/http"
)

type summarizeRequest struct {
	JobDescription string `json:"job_description"`
}

type summarizeResponse struct {
	Summary string         `json:"summary"`
	Model   string         `json:"model,omitempty"`
	Usage   *usageResponse `json:"usage,omitempty"`
}

// handleSummarize is the JSON counterpart of the web form.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.serverCfg.MaxUploadBytes)

	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeFailure(w, err)
			return
		}
		writeJSONError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := s.summarize(w, r, req.JobDescription)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	setRateLimitHeaders(w, result.Usage)
	writeJSON(w, http.StatusOK, summarizeResponse{
		Summary: result.Summary,
		Model:   result.Model,
		Usage:   newUsageResponse(result.Usage),
	})
}

// handleUsage reports the caller's usage without pruning or recording.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	s.issueCookie(w, r)
	usage, err := s.usage(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if usage == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}

	setRateLimitHeaders(w, usage)
	writeJSON(w, http.StatusOK, newUsageResponse(usage))
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
