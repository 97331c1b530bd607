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
)

// Schema describes a tool for a function-calling agent.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Result is the outcome of executing a tool.
// Content is always a plain text description, also on failure.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Tool is an action that an agent can invoke by name with
// JSON encoded arguments.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Text creates a successful result.
func Text(content string) *Result {
	return &Result{Content: content}
}

// ErrorText creates a failed result.
func ErrorText(content string) *Result {
	return &Result{Content: content, IsError: true}
}
