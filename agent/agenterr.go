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

package agent

import "errors"

// Kind classifies a runtime error per the error taxonomy: validation,
// tool execution, model call, transfer, budget, callback, output-schema,
// session, or internal invariant violation.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindTool         Kind = "tool"
	KindModel        Kind = "model"
	KindTransfer     Kind = "transfer"
	KindBudget       Kind = "budget"
	KindCallback     Kind = "callback"
	KindOutputSchema Kind = "output_schema"
	KindSession      Kind = "session"
	KindInternal     Kind = "internal"
)

// Error is a classified runtime error carrying the error code that is
// surfaced on an error event.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified Error.
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

var (
	// ErrInvalidRunConfig classifies RunConfig fields that fail
	// validation, e.g. a non-positive MaxLLMCalls. invocation.New reports
	// that case with invocation.ErrInvalidRunConfig, a distinct value.
	ErrInvalidRunConfig = errors.New("agent: invalid run config")

	// ErrLLMCallsLimitExceeded is raised the instant a model call would
	// push costCounter.llmCalls past runConfig.MaxLLMCalls. No further
	// model call is issued.
	ErrLLMCallsLimitExceeded = New(KindBudget, "LlmCallsLimitExceeded", "model call budget exceeded", nil)

	// ErrTransferLimit is raised when a transfer would push the transfer
	// chain's depth past the configured maximum.
	ErrTransferLimit = New(KindTransfer, "TransferLimit", "transfer depth limit exceeded", nil)

	// ErrInvalidTransferTarget is raised when transfer_to_agent names an
	// agent outside the current tree, or the reserved name "user".
	ErrInvalidTransferTarget = New(KindTransfer, "InvalidTransferTarget", "transfer target not found", nil)

	// ErrOutputSchemaValidationFailed is raised when the final response
	// text does not satisfy the agent's declared output schema.
	ErrOutputSchemaValidationFailed = New(KindOutputSchema, "OUTPUT_SCHEMA_VALIDATION_FAILED", "output schema validation failed", nil)

	// ErrDuplicateSubAgentName is a tree-construction invariant
	// violation: two sub-agents of the same parent share a name.
	ErrDuplicateSubAgentName = New(KindInternal, "DuplicateSubAgentName", "duplicate sub-agent name", nil)

	// ErrAgentAlreadyHasParent is a tree-construction invariant
	// violation: a sub-agent was attached to a second parent.
	ErrAgentAlreadyHasParent = New(KindInternal, "AgentAlreadyHasParent", "agent already owned by another parent", nil)

	// ErrInvalidAgentName is raised when an agent's name does not match
	// [A-Za-z_][A-Za-z0-9_]* or equals the reserved name "user".
	ErrInvalidAgentName = New(KindValidation, "InvalidAgentName", "invalid agent name", nil)
)
