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

package history

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/gdbserver"
	"github.com/tombee/gdbstub/internal/history"
)

// SessionInfo is one recorded session in JSON output.
type SessionInfo struct {
	ID         string    `json:"id"`
	Remote     string    `json:"remote"`
	Transport  string    `json:"transport"`
	Arch       string    `json:"arch"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`
	Commands   int       `json:"commands"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
}

// Response is the JSON output of the history command.
type Response struct {
	shared.JSONResponse
	Database string        `json:"database"`
	Sessions []SessionInfo `json:"sessions"`
}

// NewCommand creates the history command
func NewCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
		jq     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded debugger sessions",
		Long: `List the debugger sessions the stub has served, newest first.

Sessions are recorded when history is enabled in the configuration
(the default). Each entry shows how the session ended and how many
commands it handled.`,
		Example: `  gdbstub history --limit 10
  gdbstub history --jq '[.sessions[] | select(.reason == "error")]'`,
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			"group": "debugging",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				path, err := configuredPath()
				if err != nil {
					return err
				}
				dbPath = path
			}
			return runHistory(cmd, dbPath, limit, jq)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "History database (default: history.path from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "Maximum number of sessions to show")
	cmd.Flags().StringVar(&jq, "jq", "", "Apply a jq filter to JSON output (implies --json)")

	return cmd
}

func configuredPath() (string, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := shared.GetConfigPath(); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return "", shared.NewConfigError("failed to load configuration", err)
	}
	return cfg.History.Path, nil
}

func runHistory(cmd *cobra.Command, dbPath string, limit int, jq string) error {
	if limit <= 0 {
		return shared.NewUsageError(fmt.Sprintf("--limit must be positive, got %d", limit), nil)
	}

	resp := Response{
		JSONResponse: shared.NewJSONResponse("history"),
		Database:     dbPath,
		Sessions:     []SessionInfo{},
	}

	// A missing database means nothing was recorded yet; don't create one.
	if _, err := os.Stat(dbPath); err == nil {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := history.Open(ctx, dbPath)
		if err != nil {
			return shared.Classify("opening session history", err)
		}
		defer store.Close()

		sessions, err := store.List(ctx, limit)
		if err != nil {
			return shared.Classify("reading session history", err)
		}
		for _, s := range sessions {
			resp.Sessions = append(resp.Sessions, toInfo(s))
		}
	} else if !os.IsNotExist(err) {
		return shared.Classify("opening session history", err)
	}

	if shared.GetJSON() || jq != "" {
		return shared.EmitJSON(cmd.OutOrStdout(), resp, jq)
	}

	out := cmd.OutOrStdout()
	if len(resp.Sessions) == 0 {
		fmt.Fprintln(out, shared.Muted.Render("No sessions recorded in "+dbPath))
		return nil
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("STARTED", "REMOTE", "TRANSPORT", "ARCH", "DURATION", "CMDS", "ENDED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return shared.Header.PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
	for _, s := range resp.Sessions {
		t.Row(
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Remote,
			s.Transport,
			s.Arch,
			(time.Duration(s.DurationMs) * time.Millisecond).String(),
			fmt.Sprint(s.Commands),
			renderReason(s),
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func toInfo(s gdbserver.Summary) SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		Remote:     s.Remote,
		Transport:  s.Transport,
		Arch:       s.Arch,
		StartedAt:  s.Start,
		EndedAt:    s.End,
		DurationMs: s.End.Sub(s.Start).Milliseconds(),
		Commands:   s.Commands,
		Reason:     string(s.Reason),
		Error:      s.Error,
	}
}

func renderReason(s SessionInfo) string {
	switch gdbserver.EndReason(s.Reason) {
	case gdbserver.EndError:
		return shared.StatusError.Render(s.Reason + ": " + s.Error)
	case gdbserver.EndDetach, gdbserver.EndKill:
		return shared.StatusOK.Render(s.Reason)
	}
	return shared.StatusWarn.Render(s.Reason)
}
