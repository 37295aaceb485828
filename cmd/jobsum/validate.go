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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/jobsum/pkg/config"
)

const redacted = "********"

// ValidateCmd validates configuration.
type ValidateCmd struct {
	// Format specifies the output format
	Format string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`

	// PrintConfig prints the expanded configuration
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved, secrets redacted)."`
}

// Run executes the validate command.
func (c *ValidateCmd) Run(cli *CLI) error {
	source := cli.Config
	if source == "" {
		source = "(defaults)"
	}

	cfg, loader, err := cli.readConfig(context.Background())
	if err != nil {
		return printLoadError(os.Stdout, c.Format, source, err)
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.PrintConfig {
		return printExpandedConfig(os.Stdout, c.Format, source, redact(cfg))
	}

	printSuccess(os.Stdout, c.Format, source)
	return nil
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// printLoadError prints a configuration load error.
func printLoadError(w io.Writer, format, source string, err error) error {
	switch format {
	case "json":
		printJSONResult(w, false, source, []ValidationError{{Type: "load", Message: err.Error()}})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n")
		fmt.Fprintf(os.Stderr, "========================\n\n")
		fmt.Fprintf(os.Stderr, "Source:  %s\n", source)
		fmt.Fprintf(os.Stderr, "Error:   %s\n", err.Error())
	default: // compact
		fmt.Fprintf(os.Stderr, "%s: load error: %s\n", source, err.Error())
	}
	return fmt.Errorf("config load failed")
}

// printSuccess prints a success message.
func printSuccess(w io.Writer, format, source string) {
	switch format {
	case "json":
		printJSONResult(w, true, source, nil)
	case "verbose":
		fmt.Fprintf(w, "Configuration Validation Successful\n")
		fmt.Fprintf(w, "===================================\n\n")
		fmt.Fprintf(w, "Source: %s\n", source)
		fmt.Fprintf(w, "Status: OK Valid\n")
	default: // compact
		fmt.Fprintf(w, "%s: valid\n", source)
	}
}

// printExpandedConfig prints the expanded configuration.
func printExpandedConfig(w io.Writer, format, source string, cfg *config.Config) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
	default:
		fmt.Fprintf(w, "# Expanded configuration from: %s\n", source)
		fmt.Fprintf(w, "# (defaults applied, env vars resolved)\n\n")

		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as YAML: %w", err)
		}
		return encoder.Close()
	}
	return nil
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Generator.APIKey != "" {
		out.Generator.APIKey = redacted
	}
	if out.RateLimiting.Redis.Password != "" {
		out.RateLimiting.Redis.Password = redacted
	}
	out.Databases = make(map[string]*config.DatabaseConfig, len(cfg.Databases))
	for name, db := range cfg.Databases {
		if db == nil {
			continue
		}
		masked := *db
		if masked.Password != "" {
			masked.Password = redacted
		}
		out.Databases[name] = &masked
	}
	return &out
}

// jsonOutput is the JSON output structure.
type jsonOutput struct {
	Valid  bool              `json:"valid"`
	Source string            `json:"source"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// printJSONResult prints a JSON validation result.
func printJSONResult(w io.Writer, valid bool, source string, errors []ValidationError) {
	output := jsonOutput{
		Valid:  valid,
		Source: source,
		Errors: errors,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}
