// Copyright 2026 Ewout Prangsma
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
//
// Author Ewout Prangsma
//

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ToolNotFoundError  = errors.New("tool not found")
	DuplicateToolError = errors.New("tool already registered")
	maskAny            = errors.WithStack
)

// Registry holds named tools.
type Registry struct {
	mutex sync.RWMutex
	log   zerolog.Logger
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:   log.With().Str("component", "tools").Logger(),
		tools: make(map[string]Tool),
	}
}

// Register adds a tool, wrapped with validation of its parameter schema.
func (r *Registry) Register(t Tool) error {
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return maskAny(err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	name := t.Name()
	if _, found := r.tools[name]; found {
		return errors.Wrapf(DuplicateToolError, "tool '%s'", name)
	}
	r.tools[name] = wrapped
	return nil
}

// MustRegister is Register that panics on errors.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	t, found := r.tools[name]
	if !found {
		return nil, errors.Wrapf(ToolNotFoundError, "tool '%s'", name)
	}
	return t, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Schemas returns the schemas of all registered tools sorted by name.
func (r *Registry) Schemas() []Schema {
	list := r.List()
	result := make([]Schema, 0, len(list))
	for _, t := range list {
		result = append(result, t.Schema())
	}
	return result
}

// Invoke the tool with given name.
// The returned result is never nil; all failures are described in its
// content.
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) *Result {
	log := r.log.With().Str("tool", name).Logger()
	t, err := r.Get(name)
	if err != nil {
		log.Debug().Msg("Unknown tool invoked")
		return ErrorText(fmt.Sprintf("Unknown tool '%s'", name))
	}
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	result, err := t.Execute(ctx, params)
	if err != nil {
		log.Warn().Err(err).Msg("Tool execution failed")
		return ErrorText(fmt.Sprintf("Tool '%s' failed: %s", name, err.Error()))
	}
	if result == nil {
		return Text("")
	}
	log.Debug().Bool("is_error", result.IsError).Msg("Tool invoked")
	return result
}
