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

package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tombee/gdbstub/internal/jq"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewJSONResponse returns a successful envelope for command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: true}
}

// EmitJSON writes response as indented JSON. A non-empty filter is applied
// as a jq expression first.
func EmitJSON(w io.Writer, response interface{}, filter string) error {
	var out interface{} = response
	if filter != "" {
		data, err := jq.Normalize(response)
		if err != nil {
			return err
		}
		ex := jq.NewExecutor(5*time.Second, 0)
		out, err = ex.Execute(context.Background(), filter, data)
		if err != nil {
			return NewUsageError(fmt.Sprintf("jq filter %q failed", filter), err)
		}
		if s, ok := out.(string); ok {
			_, err := fmt.Fprintln(w, s)
			return err
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
