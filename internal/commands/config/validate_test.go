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

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/gdbstub/internal/cli/prompt"
	"github.com/tombee/gdbstub/internal/commands/shared"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantValid    bool
		wantErrors   int
		wantWarnings int
		contains     string
	}{
		{
			name:      "minimal",
			content:   "log:\n  level: info\n",
			wantValid: true,
		},
		{
			name:       "missing serial port and bad level",
			content:    "server:\n  transport: serial\nlog:\n  level: loud\n",
			wantErrors: 2,
			contains:   "server.serial.port",
		},
		{
			name:         "remote and missing regmap dir",
			content:      "server:\n  allow_remote: true\nregmaps:\n  dir: /does/not/exist\n",
			wantValid:    true,
			wantWarnings: 2,
			contains:     "allow_remote",
		},
		{
			name:       "bad yaml",
			content:    "server: [",
			wantErrors: 1,
			contains:   "config_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runValidate(writeConfig(t, tt.content))

			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if len(result.Errors) != tt.wantErrors {
				t.Errorf("errors = %v, want %d", result.Errors, tt.wantErrors)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", result.Warnings, tt.wantWarnings)
			}
			if tt.contains != "" {
				all := strings.Join(append(result.Errors, result.Warnings...), "\n")
				if !strings.Contains(all, tt.contains) {
					t.Errorf("expected %q in %q", tt.contains, all)
				}
			}
		})
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	result := runValidate(filepath.Join(t.TempDir(), "none.yaml"))
	if result.Valid {
		t.Error("missing file should be invalid")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "config init") {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestValidateCommand_Strict(t *testing.T) {
	path := writeConfig(t, "server:\n  allow_remote: true\n")

	if _, err := execute(t, prompt.NewMockPrompter(false), "validate", path); err != nil {
		t.Fatalf("warnings alone should pass: %v", err)
	}

	_, err := execute(t, prompt.NewMockPrompter(false), "validate", path, "--strict")
	if err == nil {
		t.Fatal("--strict should fail on warnings")
	}
	if shared.ExitCode(err) != shared.ExitConfig {
		t.Errorf("exit code = %d, want %d", shared.ExitCode(err), shared.ExitConfig)
	}
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeConfig(t, "server:\n  transport: pigeon\n")
	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	out, err := execute(t, prompt.NewMockPrompter(false), "validate", path)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var result ValidationResult
	if jsonErr := json.Unmarshal([]byte(out), &result); jsonErr != nil {
		t.Fatalf("failed to parse JSON: %v\n%s", jsonErr, out)
	}
	if result.Valid || result.Success {
		t.Errorf("result = %+v, want invalid", result)
	}
}
