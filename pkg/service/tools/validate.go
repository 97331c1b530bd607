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
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaValidatingTool wraps a Tool, validating parameters against
// its JSON schema before execution.
type schemaValidatingTool struct {
	Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps the given tool so that Execute validates
// its parameters against the parameter schema of the tool.
// Tools without a parameter schema are returned as is.
func WithSchemaValidation(t Tool) (Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrapf(err, "add schema of tool '%s'", t.Name())
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrapf(err, "compile schema of tool '%s'", t.Name())
	}
	return &schemaValidatingTool{Tool: t, schema: compiled}, nil
}

// Execute validates the given parameters and executes the inner tool.
func (s *schemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return ErrorText(fmt.Sprintf("invalid JSON arguments: %v", err)), nil
	}
	if err := s.schema.Validate(v); err != nil {
		return ErrorText(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return s.Tool.Execute(ctx, params)
}
