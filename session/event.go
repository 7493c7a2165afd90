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

// Package session defines the append-only event log and mutable state map
// that back one conversation, plus the Service contract the runtime uses
// to read and write them.
package session

import (
	"time"

	"google.golang.org/genai"
)

// UserAuthor is the reserved author name for events that originate from
// the end user rather than from an agent.
const UserAuthor = "user"

// CacheMetadata is bookkeeping for reusing a provider-side prompt cache
// across invocations of the same agent.
type CacheMetadata struct {
	CacheName       string
	ExpireTime      time.Time
	Fingerprint     string
	InvocationsUsed int
	ContentsCount   int
	CreatedAt       time.Time
}

// Active reports whether the cache entry can still be reused given the
// interval budget configured for the agent.
func (c *CacheMetadata) Active(now time.Time, cacheIntervals int) bool {
	if c == nil || c.CacheName == "" {
		return false
	}
	if !c.ExpireTime.IsZero() && now.After(c.ExpireTime) {
		return false
	}
	return c.InvocationsUsed < cacheIntervals
}

// Clone returns a deep copy so callers can mutate InvocationsUsed without
// aliasing the event that owns the original.
func (c *CacheMetadata) Clone() *CacheMetadata {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Compaction summarizes a range of prior events. Its exact application
// semantics are intentionally left to a future summary-aware consumer;
// the runtime only preserves the field end-to-end.
type Compaction struct {
	CompactedContent *genai.Content
	StartTimestamp   time.Time
	EndTimestamp     time.Time
}

// UsageMetadata carries token accounting reported by the model.
type UsageMetadata struct {
	PromptTokenCount     int32
	CandidatesTokenCount int32
	TotalTokenCount      int32
}

// Actions is the side-effect envelope an event may carry: state writes,
// a transfer directive, invocation termination, or compaction bookkeeping.
type Actions struct {
	StateDelta        map[string]any
	TransferToAgent   string
	Escalate          bool
	EndInvocation     bool
	SkipSummarization bool
	Compaction        *Compaction
}

// Merge overlays non-zero fields of other onto a, matching the "last one
// wins" semantics used when several function-response events from one
// step are consolidated into one emitted event.
func (a *Actions) Merge(other *Actions) {
	if other == nil {
		return
	}
	if other.StateDelta != nil {
		if a.StateDelta == nil {
			a.StateDelta = map[string]any{}
		}
		for k, v := range other.StateDelta {
			a.StateDelta[k] = v
		}
	}
	if other.TransferToAgent != "" {
		a.TransferToAgent = other.TransferToAgent
	}
	if other.Escalate {
		a.Escalate = true
	}
	if other.EndInvocation {
		a.EndInvocation = true
	}
	if other.SkipSummarization {
		a.SkipSummarization = true
	}
	if other.Compaction != nil {
		a.Compaction = other.Compaction
	}
}

// Event is one immutable record in a session's append-only log.
type Event struct {
	ID             string
	InvocationID   string
	Author         string
	Branch         string
	Timestamp      time.Time
	Content        *genai.Content
	Actions        *Actions
	UsageMetadata  *UsageMetadata
	CacheMetadata  *CacheMetadata
	GroundingMeta  *genai.GroundingMetadata
	ErrorCode      string
	ErrorMessage   string
	Partial        bool
}

// FunctionCalls returns the function-call parts of the event's content,
// if any.
func (e *Event) FunctionCalls() []*genai.FunctionCall {
	if e == nil || e.Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, p := range e.Content.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// IsFinalResponse reports whether this event is a final response: it
// carries content, has no pending function-calls, and triggers no
// transfer.
func (e *Event) IsFinalResponse() bool {
	if e == nil {
		return false
	}
	if e.Actions != nil && e.Actions.TransferToAgent != "" {
		return false
	}
	if e.Content == nil {
		return false
	}
	if len(e.FunctionCalls()) > 0 {
		return false
	}
	return true
}

// HasError reports whether this event carries a runtime-surfaced error.
func (e *Event) HasError() bool {
	return e != nil && e.ErrorCode != ""
}

// NewErrorEvent builds an event carrying only error fields, the shape
// every failure mode in the runtime's error taxonomy is surfaced as.
func NewErrorEvent(invocationID, author, branch, code, message string) *Event {
	return &Event{
		InvocationID: invocationID,
		Author:       author,
		Branch:       branch,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}
