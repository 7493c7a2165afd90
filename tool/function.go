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

package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/genai"
)

// FunctionToolHandler is the user-supplied implementation backing a
// FunctionTool: typed arguments in, typed results out.
type FunctionToolHandler[TArgs, TResults any] func(context.Context, Context, TArgs) (TResults, error)

// FunctionTool adapts a typed Go function into the Tool contract using
// reflection-derived JSON Schema for both arguments and results.
type FunctionTool[TArgs, TResults any] struct {
	name        string
	description string

	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema

	inputResolved, outputResolved *jsonschema.Resolved

	handler       FunctionToolHandler[TArgs, TResults]
	isLongRunning bool
}

// FunctionToolOption customizes a FunctionTool at construction.
type FunctionToolOption func(*functionToolConfig)

type functionToolConfig struct {
	longRunning bool
}

// LongRunning marks the tool as long-running, as reported by
// IsLongRunning. The dispatcher still waits for its result like any
// other tool's.
func LongRunning() FunctionToolOption {
	return func(c *functionToolConfig) { c.longRunning = true }
}

// NewFunctionTool builds a Tool from a typed handler, deriving both the
// argument and result JSON Schemas from TArgs/TResults via reflection.
func NewFunctionTool[TArgs, TResults any](name, description string, handler FunctionToolHandler[TArgs, TResults], opts ...FunctionToolOption) *FunctionTool[TArgs, TResults] {
	t, err := newFunctionTool(name, description, handler, opts...)
	if err != nil {
		panic(fmt.Errorf("tool.NewFunctionTool(%q): %w", name, err))
	}
	return t
}

func newFunctionTool[TArgs, TResults any](name, description string, handler FunctionToolHandler[TArgs, TResults], opts ...FunctionToolOption) (*FunctionTool[TArgs, TResults], error) {
	cfg := &functionToolConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	inSchema, err := jsonschema.For[TArgs]()
	if err != nil {
		return nil, fmt.Errorf("deriving input schema: %w", err)
	}
	outSchema, err := jsonschema.For[TResults]()
	if err != nil {
		return nil, fmt.Errorf("deriving output schema: %w", err)
	}

	t := &FunctionTool[TArgs, TResults]{
		name:          name,
		description:   description,
		inputSchema:   inSchema,
		outputSchema:  outSchema,
		handler:       handler,
		isLongRunning: cfg.longRunning,
	}

	if inSchema != nil {
		r, err := inSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return nil, fmt.Errorf("resolving input schema: %w", err)
		}
		t.inputResolved = r
	}
	if outSchema != nil {
		r, err := outSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return nil, fmt.Errorf("resolving output schema: %w", err)
		}
		t.outputResolved = r
	}

	return t, nil
}

func (f *FunctionTool[TArgs, TResults]) Name() string        { return f.name }
func (f *FunctionTool[TArgs, TResults]) Description() string { return f.description }
func (f *FunctionTool[TArgs, TResults]) IsLongRunning() bool  { return f.isLongRunning }

// ProcessRequest declares this tool's function signature onto the
// outgoing model request's tool list.
func (f *FunctionTool[TArgs, TResults]) ProcessRequest(ctx context.Context, cfg *genai.GenerateContentConfig) error {
	decl := &genai.FunctionDeclaration{
		Name:                 f.name,
		Description:          f.description,
		ParametersJsonSchema: f.inputSchema,
		ResponseJsonSchema:   f.outputSchema,
	}
	cfg.Tools = append(cfg.Tools, &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{decl},
	})
	return nil
}

// Run decodes args into TArgs via mapstructure, validates the result
// against the resolved input schema, invokes the handler, and marshals
// the typed result back into a plain map — genai.FunctionCall and
// genai.FunctionResponse both traffic in map[string]any.
func (f *FunctionTool[TArgs, TResults]) Run(ctx context.Context, tctx Context, args map[string]any) (any, error) {
	var typedArgs TArgs
	if err := decodeArgs(args, f.inputResolved, &typedArgs); err != nil {
		return nil, err
	}

	result, err := f.handler(ctx, tctx, typedArgs)
	if err != nil {
		return nil, err
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	var respMap map[string]any
	if err := json.Unmarshal(respJSON, &respMap); err != nil {
		return nil, fmt.Errorf("unmarshaling tool result: %w", err)
	}
	return respMap, nil
}

// decodeArgs uses mapstructure for the map->struct decode (so unknown
// fields are caught independent of each target field's json tag) then
// validates the result against the resolved schema.
func decodeArgs(args map[string]any, resolved *jsonschema.Resolved, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("building arg decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("decoding tool arguments: %w", err)
	}

	if resolved == nil {
		return nil
	}
	normalized, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("normalizing tool arguments: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(normalized))
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("decoding tool arguments for validation: %w", err)
	}
	if err := resolved.Validate(generic); err != nil {
		return fmt.Errorf("validating tool arguments: %w", err)
	}
	return nil
}
