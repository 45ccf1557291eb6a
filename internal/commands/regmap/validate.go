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

package regmap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/regmap"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// FileResult is the validation outcome for one file.
type FileResult struct {
	Path     string   `json:"path"`
	Arch     string   `json:"arch,omitempty"`
	Valid    bool     `json:"valid"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateResponse is the JSON output of regmap validate.
type ValidateResponse struct {
	shared.JSONResponse
	Files []FileResult `json:"files"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check register map files",
		Long: `Parse and check register map files.

Structural problems (missing fields, duplicate numbers, unknown types) are
errors. Entries a simulated target cannot bind are reported as warnings;
the stub skips them at session start.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := ValidateResponse{JSONResponse: shared.NewJSONResponse("regmap validate")}
			var firstErr error
			for _, path := range args {
				res, err := validateFile(path)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				resp.Files = append(resp.Files, res)
			}
			resp.Success = firstErr == nil

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if err := shared.EmitJSON(out, resp, ""); err != nil {
					return err
				}
			} else {
				for _, f := range resp.Files {
					if !f.Valid {
						fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s: %s", f.Path, f.Error)))
						continue
					}
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s (%s)", f.Path, f.Arch)))
					for _, w := range f.Warnings {
						fmt.Fprintln(out, "  "+shared.RenderWarn(w))
					}
				}
			}

			if firstErr != nil {
				return shared.Classify(fmt.Sprintf("%d of %s invalid", countInvalid(resp.Files), plural(len(args), "file")), firstErr)
			}
			return nil
		},
	}

	return cmd
}

func validateFile(path string) (FileResult, error) {
	res := FileResult{Path: path}
	m, err := regmap.LoadFile(path)
	if err != nil {
		res.Error = err.Error()
		var ve *stuberrors.ValidationError
		if !stuberrors.As(err, &ve) {
			err = &stuberrors.ValidationError{Field: "file", Message: err.Error()}
		}
		return res, err
	}

	res.Arch = m.Arch
	res.Valid = true
	if catalog, ok := catalogFor(m); ok {
		for _, e := range unbound(m, catalog) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("register %s (%d): %s state %q cannot be bound", e.Name, e.Number, m.Arch, e.State))
		}
	} else {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no simulated target for %s; state symbols not checked", m.Arch))
	}
	return res, nil
}

func countInvalid(files []FileResult) int {
	n := 0
	for _, f := range files {
		if !f.Valid {
			n++
		}
	}
	return n
}
