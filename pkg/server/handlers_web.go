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
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kadirpekel/jobsum/pkg/extract"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
	"github.com/kadirpekel/jobsum/pkg/summarizer"
)

// Form fields of the web page.
const (
	fieldJobDescription = "job_description"
	fieldDocument       = "document"
)

// multipartMemory is how much of a multipart form is held in memory
// before spilling to temporary files.
const multipartMemory = 4 << 20

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// pageData is rendered by templates/index.html.
type pageData struct {
	JobDescription string
	Summary        string
	Message        string
	Warning        bool
	Usage          *ratelimit.Decision
	Per            string
	Accept         string
}

func (s *Server) newPage() *pageData {
	var accept []string
	for _, ext := range extract.SupportedExtensions() {
		if ext != "" {
			accept = append(accept, ext)
		}
	}
	return &pageData{Accept: strings.Join(accept, ",")}
}

func (s *Server) renderPage(w http.ResponseWriter, status int, page *pageData) {
	if page.Usage != nil {
		_, page.Per = describeWindow(page.Usage.Window)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, page); err != nil {
		slog.Error("Failed to render page", "error", err)
	}
}

// handleIndex renders the empty form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := s.newPage()
	usage, err := s.usage(r)
	if err != nil && !errors.Is(err, summarizer.ErrUnknownIdentity) {
		slog.Warn("Failed to read usage", "error", err)
	}
	page.Usage = usage
	s.issueCookie(w, r)
	s.renderPage(w, http.StatusOK, page)
}

// handleSubmit runs the summarize flow for the submitted form.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	page := s.newPage()

	jobDescription, err := s.readForm(w, r)
	page.JobDescription = jobDescription
	if err == nil {
		var result *summarizer.Result
		result, err = s.summarize(w, r, jobDescription)
		if err == nil {
			page.Summary = result.Summary
			page.Usage = result.Usage
			s.renderPage(w, http.StatusOK, page)
			return
		}
	}

	f := s.describe(err)
	if f.Status >= http.StatusInternalServerError {
		slog.Error("Request failed", "code", f.Code, "error", err)
	}
	page.Message = f.Message
	page.Warning = f.Code == codeEmptyInput || f.Code == codeUnknownIdentity
	page.Usage = ratelimit.DecisionFromError(err)
	s.renderPage(w, f.Status, page)
}

// readForm returns the job description from the textarea and the optional
// uploaded document, which is appended when both are given.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.serverCfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", fmt.Errorf("failed to parse form: %w", err)
	}

	text := r.FormValue(fieldJobDescription)

	file, header, err := r.FormFile(fieldDocument)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return text, nil
	}
	if err != nil {
		return text, fmt.Errorf("failed to read upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return text, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return text, nil
	}

	extracted, err := extract.Text(r.Context(), header.Filename, data)
	if err != nil {
		return text, &documentError{err: err}
	}
	slog.Debug("Extracted uploaded document", "filename", header.Filename, "chars", len(extracted))

	if strings.TrimSpace(text) == "" {
		return extracted, nil
	}
	return text + "\n\n" + extracted, nil
}
