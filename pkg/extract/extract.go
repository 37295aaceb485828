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

// Package extract pulls plain text out of uploaded job description
// documents (PDF, DOCX, XLSX and plain text).
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for file types that cannot be extracted.
var ErrUnsupported = errors.New("unsupported document type")

// maxSheetCells limits cells read per sheet to avoid huge prompts.
const maxSheetCells = 1000

// extractor pulls text out of a document held in memory.
type extractor func(ctx context.Context, data []byte) (string, error)

var extractors = map[string]extractor{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractXLSX,
	".txt":  extractText,
	".md":   extractText,
	"":      extractText,
}

// SupportedExtensions lists the accepted file extensions, for the upload
// form's accept attribute.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".xlsx", ".txt", ".md"}
}

// Supported reports whether filename has an extractable extension.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Text extracts the text of a document. The extractor is chosen by the
// extension of filename.
func Text(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnsupported, ext, strings.Join(SupportedExtensions(), ", "))
	}

	text, err := fn(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(filename), err)
	}
	return strings.TrimSpace(text), nil
}

func extractText(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8")
	}
	return string(data), nil
}

func extractPDF(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", pageNum, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:tab\s*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
)

func extractDOCX(_ context.Context, data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	return docxText(doc.Editable().GetContent()), nil
}

// docxText turns WordprocessingML into plain text, one paragraph per line.
func docxText(content string) string {
	content = docxParagraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if strings.HasPrefix(tag, "<w:tab") {
			return "\t"
		}
		return "\n"
	})
	content = xmlTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	return blankLines.ReplaceAllString(content, "\n\n")
}

func extractXLSX(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		var b strings.Builder
		cells := 0
		for _, row := range rows {
			var values []string
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					values = append(values, text)
				}
			}
			if len(values) == 0 {
				continue
			}
			b.WriteString(strings.Join(values, "\t"))
			b.WriteByte('\n')

			cells += len(values)
			if cells >= maxSheetCells {
				b.WriteString("... (truncated)\n")
				break
			}
		}

		if b.Len() > 0 {
			parts = append(parts, fmt.Sprintf("--- Sheet: %s ---\n%s", sheet, b.String()))
		}
	}
	return strings.Join(parts, "\n"), nil
}
