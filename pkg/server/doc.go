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

// Package server serves the job description summarizer over HTTP.
//
// Routes:
//   - GET  /                         web form
//   - POST /                         web form submission (text or document upload)
//   - POST /api/summarize            JSON summarize
//   - GET  /api/usage                caller's usage
//   - GET  /health                   liveness
//   - GET  /metrics                  Prometheus metrics (when enabled)
//   - GET  /admin/usage/{identity}   usage of any identity (JWT, admin role)
//   - DELETE /admin/usage/{identity} reset an identity
//   - POST /admin/prune              remove expired events
//
// Callers are identified by the configured strategy. With the cookie
// strategy every request carries its own usage log in a cookie, which is
// written back before the response body.
package server
