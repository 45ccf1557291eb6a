// Copyright 2025 Tom Barlow
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

package tracing

import (
	"fmt"
	"slices"
)

// Exporter names.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter selects where spans go: stdout, otlp-grpc or otlp-http.
	Exporter string

	// Endpoint is the collector address for the OTLP exporters.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the fraction of sessions traced (0.0 - 1.0). Zero means all.
	SampleRate float64

	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string
}

// Exporters lists the supported exporter names.
func Exporters() []string {
	return []string{ExporterStdout, ExporterOTLPGRPC, ExporterOTLPHTTP}
}

// Validate checks the exporter name and sample rate.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Exporter != "" && !slices.Contains(Exporters(), c.Exporter) {
		return fmt.Errorf("unknown exporter type: %s", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %v", c.SampleRate)
	}
	return nil
}
