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

package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	// ErrRateLimitExceeded is returned when an identity has used up its quota.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidIdentity is returned when an identity is empty.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrResetUnsupported is returned by Limiter.Reset when the store cannot
	// delete an identity's events.
	ErrResetUnsupported = errors.New("store does not support reset")
)

// RateLimitError carries the Decision that denied a request.
type RateLimitError struct {
	Message  string
	Decision *Decision
}

// Error returns the error message.
func (e *RateLimitError) Error() string {
	return e.Message
}

// Unwrap returns ErrRateLimitExceeded.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// NewRateLimitError creates a RateLimitError from a denying Decision.
func NewRateLimitError(d *Decision) *RateLimitError {
	message := "rate limit exceeded"
	if d != nil {
		message = fmt.Sprintf("rate limit exceeded: %d of %d allowed in %s", d.Count, d.Limit, d.Window)
		if d.RetryAfter > 0 {
			message += fmt.Sprintf(", retry in %s", d.RetryAfter.Round(time.Second))
		}
	}
	return &RateLimitError{
		Message:  message,
		Decision: d,
	}
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimitExceeded)
}

// DecisionFromError extracts the Decision from a rate limit error.
// Returns nil if the error is not a RateLimitError.
func DecisionFromError(err error) *Decision {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Decision
	}
	return nil
}

// ValidationError represents a policy or configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the validation error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
