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
	"os"
	"time"

	"github.com/kadirpekel/jobsum/pkg/ratelimit"
)

// withLimiter loads the config and runs fn against the shared limiter.
func withLimiter(cli *CLI, fn func(ctx context.Context, limiter *ratelimit.Limiter) error) error {
	ctx := context.Background()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter, err := a.requireLimiter()
	if err != nil {
		return err
	}
	return fn(ctx, limiter)
}

// UsageCmd shows an identity's usage.
type UsageCmd struct {
	Identity string `arg:"" help:"Identity (client address, or the configured CLI identity)."`
	JSON     bool   `help:"Print JSON."`
}

func (c *UsageCmd) Run(cli *CLI) error {
	return withLimiter(cli, func(ctx context.Context, limiter *ratelimit.Limiter) error {
		d, err := limiter.Usage(ctx, c.Identity)
		if err != nil {
			return err
		}

		if c.JSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(d)
		}

		fmt.Printf("Identity:    %s\n", d.Identity)
		fmt.Printf("Used:        %d of %d per %s\n", d.Count, d.Limit, d.Window)
		fmt.Printf("Remaining:   %d\n", d.Remaining)
		if !d.ResetAt.IsZero() {
			fmt.Printf("Oldest expires: %s\n", d.ResetAt.Format(time.RFC3339))
		}
		if !d.Allowed {
			fmt.Printf("Blocked for: %s\n", d.RetryAfter.Round(time.Second))
		}
		return nil
	})
}

// ResetCmd deletes an identity's usage.
type ResetCmd struct {
	Identity string `arg:"" help:"Identity to reset."`
}

func (c *ResetCmd) Run(cli *CLI) error {
	return withLimiter(cli, func(ctx context.Context, limiter *ratelimit.Limiter) error {
		if err := limiter.Reset(ctx, c.Identity); err != nil {
			return err
		}
		fmt.Printf("Usage of %s reset\n", c.Identity)
		return nil
	})
}

// PruneCmd removes expired usage events of every identity.
type PruneCmd struct{}

func (c *PruneCmd) Run(cli *CLI) error {
	return withLimiter(cli, func(ctx context.Context, limiter *ratelimit.Limiter) error {
		removed, err := limiter.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired events\n", removed)
		return nil
	})
}
