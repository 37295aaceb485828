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

// Command jobsum is the CLI for the job description summarizer.
//
// Usage:
//
//	jobsum serve --config config.yaml
//	jobsum summarize job.pdf
//	jobsum usage 203.0.113.7 --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/jobsum"
	"github.com/kadirpekel/jobsum/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version   VersionCmd   `cmd:"" help:"Show version information."`
	Serve     ServeCmd     `cmd:"" help:"Start the web server."`
	Summarize SummarizeCmd `cmd:"" help:"Summarize a job description from a file or stdin."`
	Usage     UsageCmd     `cmd:"" help:"Show an identity's usage."`
	Reset     ResetCmd     `cmd:"" help:"Delete an identity's usage."`
	Prune     PruneCmd     `cmd:"" help:"Remove expired usage events."`
	Validate  ValidateCmd  `cmd:"" help:"Validate configuration."`
	Schema    SchemaCmd    `cmd:"" help:"Print the JSON Schema of the configuration file."`

	Config          string   `short:"c" help:"Config file path, or the key/znode for remote providers."`
	ConfigType      string   `name:"config-type" help:"Config provider: file, consul, etcd, zookeeper." default:"file" enum:"file,consul,etcd,zookeeper"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints of the remote config provider." placeholder:"HOST:PORT"`
	ConfigToken     string   `name:"config-token" help:"Token for the consul provider." env:"CONSUL_HTTP_TOKEN"`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, json)."`

	logging *logging `kong:"-"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(jobsum.GetVersion())
	return nil
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("jobsum"),
		kong.Description("Summarize job descriptions with a generative model, rate limited per caller."),
		kong.UsageOnError(),
	)

	// Flags and env apply now; the config file's logger section is merged
	// once a command has loaded it.
	logging, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()
	cli.logging = logging

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
