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

package version

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/target/sim"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	shared.JSONResponse
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Archs     []string `json:"archs"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, build date and simulated architectures for gdbstub.`,
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	info := VersionInfo{
		JSONResponse: shared.NewJSONResponse("version"),
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		GoVersion:    runtime.Version(),
		Archs:        sim.Archs(),
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info, "")
	}

	cmd.Printf("gdbstub version %s\n", info.Version)
	cmd.Printf("  %s\n", shared.RenderField("commit", 11, info.Commit))
	cmd.Printf("  %s\n", shared.RenderField("build date", 11, info.BuildDate))
	cmd.Printf("  %s\n", shared.RenderField("go", 11, info.GoVersion))
	cmd.Printf("  %s\n", shared.RenderField("archs", 11, strings.Join(info.Archs, ", ")))

	return nil
}
