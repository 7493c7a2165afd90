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

// Package llm declares the model-adapter boundary the single-flow step
// machine calls through. Concrete provider adapters (Gemini, OpenAI,
// Anthropic, ...) are external collaborators; this package only defines
// the contract and ships an in-memory fake for tests.
package llm

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// Request is one model call: ordered conversation contents plus
// generation config, with an optional cache handle.
type Request struct {
	Model          string
	Contents       []*genai.Content
	Config         *genai.GenerateContentConfig
	CacheName      string
}

// Response is one model reply. Streaming calls produce a sequence of
// partial responses (Partial=true) followed by one final response.
type Response struct {
	Content           *genai.Content
	GroundingMetadata *genai.GroundingMetadata
	UsageMetadata     *genai.GenerateContentResponseUsageMetadata
	FinishReason      genai.FinishReason
	Partial           bool
	TurnComplete      bool
	ID                string
	ErrorCode         string
	ErrorMessage      string
}

// Model is the contract the step machine drives. GenerateStream always
// returns at least one response; for non-streaming calls the sequence
// has exactly one, non-partial, element.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	GenerateStream(ctx context.Context, req *Request) iter.Seq2[*Response, error]
}
