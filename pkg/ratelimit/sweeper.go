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
	"context"
	"log/slog"
	"time"
)

// Sweeper prunes expired events on a fixed interval, so identities that
// stop calling do not keep their events around until someone else checks.
type Sweeper struct {
	limiter  *Limiter
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(limiter *Limiter, interval time.Duration) *Sweeper {
	return &Sweeper{limiter: limiter, interval: interval}
}

// Run prunes until ctx is cancelled. Prune failures are logged and retried
// on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.limiter == nil || s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Debug("Usage sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.limiter.Prune(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("Usage sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Swept expired usage events", "removed", removed)
			}
		}
	}
}
