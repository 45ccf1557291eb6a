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

/*
Package tracing configures OpenTelemetry tracing for the stub.

The server starts one span per debugger session and a child span for every
command it dispatches. Spans go to the exporter named in the configuration:

  - stdout: pretty-printed JSON on standard output
  - otlp-grpc: an OTLP collector over gRPC (default localhost:4317)
  - otlp-http: an OTLP collector over HTTP (default localhost:4318)

# Quick Start

	provider, err := tracing.New(ctx, tracing.Config{
	    Enabled:  true,
	    Exporter: tracing.ExporterOTLPGRPC,
	    Endpoint: "collector:4317",
	    Insecure: true,
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(context.Background())

New installs the provider globally, so packages obtain tracers with
otel.Tracer. When tracing is disabled the global no-op provider stays in place.
*/
package tracing
