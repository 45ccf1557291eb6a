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

package daemon

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/target/sim"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// NewTarget builds the target described by cfg.
func NewTarget(cfg config.TargetConfig, logger *slog.Logger) (*sim.Target, error) {
	if cfg.Kind != "" && cfg.Kind != config.DefaultTargetKind {
		return nil, &stuberrors.NotFoundError{Resource: "target", ID: cfg.Kind}
	}

	conds, err := cfg.Conditions()
	if err != nil {
		return nil, err
	}

	var program []byte
	if cfg.Program != "" {
		program, err = os.ReadFile(cfg.Program)
		if err != nil {
			return nil, fmt.Errorf("failed to read program image: %w", err)
		}
	}

	return sim.New(sim.Config{
		Arch:        cfg.Arch,
		MemorySize:  cfg.MemorySize,
		BaseAddress: cfg.BaseAddress,
		BigEndian:   cfg.BigEndian,
		Program:     program,
		Entry:       cfg.Entry,
		ClockHz:     cfg.ClockHz,
		Conditions:  conds,
		Logger:      logger,
	})
}
