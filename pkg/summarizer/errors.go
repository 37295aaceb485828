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
	"errors"
	"fmt"
)

var (
	// ErrUnknownIdentity is returned when the caller could not be
	// identified. Nothing is checked or recorded.
	ErrUnknownIdentity = errors.New("caller identity could not be determined")

	// ErrEmptyInput is returned when the job description is blank.
	// Nothing is checked or recorded.
	ErrEmptyInput = errors.New("job description is empty")
)

// GenerationError reports a failed call to the generator. No usage is
// recorded for the request.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(model string, err error) *GenerationError {
	return &GenerationError{Model: model, Err: fmt.Errorf("generation with %s failed: %w", model, err)}
}
