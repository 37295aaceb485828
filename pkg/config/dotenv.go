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

package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env files.
//
// Search order:
//  1. Explicit paths, in order
//  2. .env in the current directory
//  3. ~/.env
//
// Existing environment variables are never overwritten, so earlier files
// take precedence over later ones.
func LoadDotEnv(paths ...string) {
	for _, path := range paths {
		if path != "" {
			loadIfExists(path)
		}
	}

	loadIfExists(".env")

	if home, err := os.UserHomeDir(); err == nil {
		loadIfExists(filepath.Join(home, ".env"))
	}
}

// LoadDotEnvForConfig additionally loads .env next to the config file.
func LoadDotEnvForConfig(configPath string) {
	if configPath == "" {
		LoadDotEnv()
		return
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		LoadDotEnv()
		return
	}

	LoadDotEnv(filepath.Join(filepath.Dir(absPath), ".env"))
}

func loadIfExists(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	if err := godotenv.Load(path); err != nil {
		slog.Debug("Failed to load .env file", "path", path, "error", err)
		return
	}

	slog.Debug("Loaded environment from .env", "path", path)
}
