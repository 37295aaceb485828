// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package summarizer

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultPromptTemplate asks for a one-paragraph summary of the role and
// its key qualifications.
const DefaultPromptTemplate = `Analyze the following job description and provide two things:
1. A concise, one-paragraph summary of the role's primary responsibilities.
2. A bulleted list of the top 5-7 key qualifications, skills, or experience requirements mentioned.
Job Description:
---
{{ .JobDescription }}
`

// PromptData is the data passed to the prompt template.
type PromptData struct {
	JobDescription string
}

// ParsePrompt parses a prompt template. An empty text selects
// DefaultPromptTemplate.
func ParsePrompt(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return tmpl, nil
}

func renderPrompt(tmpl *template.Template, jobDescription string) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, PromptData{JobDescription: jobDescription}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
