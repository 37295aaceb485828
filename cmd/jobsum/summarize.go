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
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/kadirpekel/jobsum/pkg/extract"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
)

// SummarizeCmd summarizes one job description locally, counting usage
// against the configured server-side store.
type SummarizeCmd struct {
	File     string `arg:"" optional:"" type:"existingfile" help:"Job description file (pdf, docx, xlsx, txt, md). Reads stdin when omitted."`
	Identity string `default:"local" help:"Identity to count usage against."`
}

func (c *SummarizeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	text, err := c.readInput(ctx)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startService(); err != nil {
		return err
	}

	result, err := a.svc.Summarize(ctx, c.Identity, text)
	if err != nil {
		if d := ratelimit.DecisionFromError(err); d != nil && d.RetryAfter > 0 {
			return fmt.Errorf("%w (try again in %s)", err, d.RetryAfter.Round(time.Second))
		}
		return err
	}

	fmt.Println(result.Summary)
	if result.Usage != nil {
		fmt.Fprintf(os.Stderr, "\n%d of %d summaries left for %q in the current %s window\n",
			result.Usage.Remaining, result.Usage.Limit, c.Identity, result.Usage.Window)
	}
	return nil
}

// readInput returns the job description from the file argument or stdin.
func (c *SummarizeCmd) readInput(ctx context.Context) (string, error) {
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", c.File, err)
		}
		text, err := extract.Text(ctx, filepath.Base(c.File), data)
		if err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", c.File, err)
		}
		return text, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Paste the job description, then press Ctrl+D:")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
