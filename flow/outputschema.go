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

package flow

import (
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
)

// OutputSchemaResponseProcessor validates the final text response against
// schema: strip any markdown code fence, parse as JSON (repairing a
// truncated-bracket response as a fallback), validate, then normalize the
// response content to the canonical JSON text. The content is replaced
// by that normalized text, so an object or array comes out as indented
// JSON even when the model wrote it compactly. Normalized objects,
// arrays, numbers and booleans pass through a second run unchanged; a
// string value is stored unquoted, which a second run does not parse.
//
// On failure the response content is left untouched and an
// OUTPUT_SCHEMA_VALIDATION_FAILED error event is emitted instead of
// aborting the step machine: the caller decides whether to retry.
func OutputSchemaResponseProcessor(schema *jsonschema.Schema) ResponseProcessor {
	resolved, resolveErr := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})

	return func(ictx *invocation.Context, req *llm.Request, resp *llm.Response) ([]*session.Event, error) {
		if resp == nil || resp.Content == nil || len(resp.Content.Parts) == 0 {
			return nil, nil
		}
		text := contentText(resp.Content)
		if text == "" {
			return nil, nil
		}

		if resolveErr != nil {
			return []*session.Event{session.NewErrorEvent(ictx.InvocationID(), ictx.Agent().Name(), ictx.Branch(),
				"OUTPUT_SCHEMA_VALIDATION_FAILED", resolveErr.Error())}, nil
		}

		value, err := parseSchemaJSON(text)
		if err != nil {
			return []*session.Event{session.NewErrorEvent(ictx.InvocationID(), ictx.Agent().Name(), ictx.Branch(),
				"OUTPUT_SCHEMA_VALIDATION_FAILED", err.Error())}, nil
		}

		if err := resolved.Validate(value); err != nil {
			return []*session.Event{session.NewErrorEvent(ictx.InvocationID(), ictx.Agent().Name(), ictx.Branch(),
				"OUTPUT_SCHEMA_VALIDATION_FAILED", err.Error())}, nil
		}

		normalized, err := normalizeSchemaValue(value)
		if err != nil {
			return []*session.Event{session.NewErrorEvent(ictx.InvocationID(), ictx.Agent().Name(), ictx.Branch(),
				"OUTPUT_SCHEMA_VALIDATION_FAILED", err.Error())}, nil
		}
		resp.Content = genai.NewContentFromText(normalized, resp.Content.Role)
		return nil, nil
	}
}

// ValidateText applies the output-schema rules to a raw text response:
// strip a code fence, parse as JSON with the repair fallback, validate
// against schema, and return the normalized canonical form. Composite
// agents use it to validate the last sub-agent's final response.
func ValidateText(schema *jsonschema.Schema, text string) (string, error) {
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return "", err
	}
	value, err := parseSchemaJSON(text)
	if err != nil {
		return "", err
	}
	if err := resolved.Validate(value); err != nil {
		return "", err
	}
	return normalizeSchemaValue(value)
}

func contentText(c *genai.Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// parseSchemaJSON strips a surrounding markdown code fence if present,
// then parses the remainder as JSON. If a direct parse fails it falls
// back to balancing unterminated brackets/braces/strings, the common
// shape of a response truncated mid-object.
func parseSchemaJSON(text string) (any, error) {
	text = stripCodeFence(text)

	var value any
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return value, nil
	}

	repaired := repairJSON(text)
	var repairedValue any
	if err := json.Unmarshal([]byte(repaired), &repairedValue); err != nil {
		return nil, err
	}
	return repairedValue, nil
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(t[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{}[]\"") {
			t = t[nl+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// repairJSON closes any brackets, braces, or an unterminated string left
// open at the end of text, tracking nesting with a stack so the closers
// are appended in the correct reverse order.
func repairJSON(text string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(text)
	if inString {
		sb.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			sb.WriteByte('}')
		case '[':
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// normalizeSchemaValue renders value back to canonical JSON text.
// Primitives (string/number/bool/null) pass through as their plain
// textual form rather than re-quoted JSON, matching what a caller
// expecting a scalar output would want; objects and arrays render as
// indented JSON.
func normalizeSchemaValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "null", nil
	case bool, float64:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
