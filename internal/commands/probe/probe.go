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

package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/rsp/client"
	"github.com/tombee/gdbstub/internal/transport"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// Exchange is one request and the stub's reply.
type Exchange struct {
	Request  string `json:"request"`
	Reply    string `json:"reply"`
	Duration string `json:"duration"`
}

// Response is the JSON output of the probe command.
type Response struct {
	shared.JSONResponse
	Transport string     `json:"transport"`
	Address   string     `json:"address"`
	Exchanges []Exchange `json:"exchanges"`
}

type probeFlags struct {
	transport string
	addr      string
	timeout   time.Duration
	interrupt bool
	jq        string
}

// NewCommand creates the probe command
func NewCommand() *cobra.Command {
	f := &probeFlags{}

	cmd := &cobra.Command{
		Use:   "probe [packet...]",
		Short: "Send packets to a running stub",
		Long: `Connect to a stub, send each packet payload in order and print the replies.

Payloads are given without framing; the checksum is added. With no packets
a stop query ("?") is sent.`,
		Example: `  # Ask for the stop reason and the registers
  gdbstub probe '?' g

  # Read 16 bytes at 0x1000 as JSON and keep only the reply
  gdbstub probe m1000,10 --json --jq '.exchanges[0].reply'

  # Break into a running target
  gdbstub probe --interrupt`,
		Annotations: map[string]string{
			"group": "debugging",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.transport, "transport", "t", string(transport.KindTCP), "Transport: tcp, unix, serial, quic, ws")
	cmd.Flags().StringVarP(&f.addr, "addr", "a", transport.DefaultTCPAddress, "Stub address or socket path")
	cmd.Flags().DurationVar(&f.timeout, "timeout", client.DefaultTimeout, "Time to wait for each reply")
	cmd.Flags().BoolVar(&f.interrupt, "interrupt", false, "Send a break-in and wait for the stop reply first")
	cmd.Flags().StringVar(&f.jq, "jq", "", "Apply a jq filter to JSON output (implies --json)")

	return cmd
}

func runProbe(cmd *cobra.Command, f *probeFlags, packets []string) error {
	kind, err := parseKind(f.transport)
	if err != nil {
		return err
	}
	if len(packets) == 0 && !f.interrupt {
		packets = []string{"?"}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := log.WithComponent(log.New(log.FromEnv()), "probe")
	dialCtx, cancel := context.WithTimeout(ctx, f.timeout)
	c, err := client.Dial(dialCtx, kind, f.addr, client.WithTimeout(f.timeout), client.WithLogger(logger))
	cancel()
	if err != nil {
		return shared.NewConnectionError(fmt.Sprintf("cannot reach stub at %s", f.addr), err)
	}
	defer c.Close()

	resp := Response{
		JSONResponse: shared.NewJSONResponse("probe"),
		Transport:    string(kind),
		Address:      f.addr,
	}

	if f.interrupt {
		start := time.Now()
		if err := c.Interrupt(); err != nil {
			return shared.NewConnectionError("sending interrupt", err)
		}
		reply, err := c.Reply(ctx)
		if err != nil {
			return shared.Classify("no stop reply after interrupt", err)
		}
		resp.Exchanges = append(resp.Exchanges, Exchange{Request: "^C", Reply: reply, Duration: time.Since(start).String()})
	}

	for _, p := range packets {
		if p == "" {
			return shared.NewUsageError("empty packet", &stuberrors.ValidationError{Field: "packet", Message: "payload is empty"})
		}
		start := time.Now()
		reply, err := c.Exchange(ctx, p)
		if err != nil {
			return shared.Classify(fmt.Sprintf("packet %q failed", p), err)
		}
		resp.Exchanges = append(resp.Exchanges, Exchange{Request: p, Reply: reply, Duration: time.Since(start).String()})
	}

	if shared.GetJSON() || f.jq != "" {
		return shared.EmitJSON(cmd.OutOrStdout(), resp, f.jq)
	}

	out := cmd.OutOrStdout()
	for _, ex := range resp.Exchanges {
		fmt.Fprintf(out, "%s %s\n", shared.Bold.Render("->"), ex.Request)
		fmt.Fprintf(out, "%s %s\n", shared.Bold.Render("<-"), shared.RenderReply(ex.Reply))
	}
	return nil
}

func parseKind(s string) (transport.Kind, error) {
	kind := transport.Kind(strings.ToLower(s))
	for _, k := range transport.Kinds() {
		if k == kind {
			return kind, nil
		}
	}
	return "", shared.NewUsageError(fmt.Sprintf("unsupported transport %q", s), &stuberrors.ValidationError{
		Field:      "transport",
		Message:    fmt.Sprintf("must be one of %v", transport.Kinds()),
		Suggestion: "Use --transport tcp with the stub's listen address",
	})
}
