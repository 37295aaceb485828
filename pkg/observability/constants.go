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

package observability

const (
	DefaultServiceName  = "jobsum"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultSamplingRate = 1.0

	meterName  = "github.com/kadirpekel/jobsum"
	tracerName = "github.com/kadirpekel/jobsum"
)

// Span names.
const (
	SpanHTTPRequest    = "http.request"
	SpanSummarize      = "summarizer.summarize"
	SpanRateLimitCheck = "ratelimit.check"
	SpanGenerate       = "generator.generate"
)

// Attribute keys.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrIdentity       = "jobsum.identity"
	AttrAllowed        = "jobsum.ratelimit.allowed"
	AttrCount          = "jobsum.ratelimit.count"
	AttrOutcome        = "jobsum.outcome"
	AttrModel          = "jobsum.model"
)
