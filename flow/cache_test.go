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
	"context"
	"testing"
	"time"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/session"
)

type cacheTestAgent string

func (a cacheTestAgent) Name() string { return string(a) }

func newCacheContext(t *testing.T, agentName string, events []*session.Event) *invocation.Context {
	t.Helper()
	sess := &session.Session{App: "test", User: "u1", ID: "s1", Events: events, State: session.NewState(nil)}
	ictx, err := invocation.New(context.Background(), invocation.Params{
		InvocationID: "inv-current",
		Agent:        cacheTestAgent(agentName),
		RunConfig:    invocation.DefaultRunConfig(),
		Session:      sess,
	})
	if err != nil {
		t.Fatalf("invocation.New: %v", err)
	}
	return ictx
}

func activeMetadata(name string) *session.CacheMetadata {
	return &session.CacheMetadata{
		CacheName:       name,
		ExpireTime:      time.Now().Add(time.Hour),
		Fingerprint:     "fp",
		InvocationsUsed: 1,
	}
}

func TestScanCache_AdoptsMostRecentForAgent(t *testing.T) {
	events := []*session.Event{
		{Author: "a", InvocationID: "inv-old", CacheMetadata: activeMetadata("older")},
		{Author: "a", InvocationID: "inv-old", CacheMetadata: activeMetadata("newer")},
	}
	got := scanCache(newCacheContext(t, "a", events), "a", 10)
	if got.metadata == nil || got.metadata.CacheName != "newer" {
		t.Fatalf("adopted %+v, want newer", got.metadata)
	}
}

func TestScanCache_IncrementsAcrossInvocations(t *testing.T) {
	events := []*session.Event{
		{Author: "a", InvocationID: "inv-old", CacheMetadata: activeMetadata("c")},
	}
	got := scanCache(newCacheContext(t, "a", events), "a", 10)
	if got.metadata.InvocationsUsed != 2 {
		t.Fatalf("InvocationsUsed = %d, want 2 (prior invocation, still active)", got.metadata.InvocationsUsed)
	}

	// Same invocation: adopted as-is.
	events = []*session.Event{
		{Author: "a", InvocationID: "inv-current", CacheMetadata: activeMetadata("c")},
	}
	got = scanCache(newCacheContext(t, "a", events), "a", 10)
	if got.metadata.InvocationsUsed != 1 {
		t.Fatalf("InvocationsUsed = %d, want 1 (same invocation)", got.metadata.InvocationsUsed)
	}
}

func TestScanCache_ExpiredNotIncremented(t *testing.T) {
	md := activeMetadata("c")
	md.ExpireTime = time.Now().Add(-time.Hour)
	events := []*session.Event{
		{Author: "a", InvocationID: "inv-old", CacheMetadata: md},
	}
	got := scanCache(newCacheContext(t, "a", events), "a", 10)
	if got.metadata.InvocationsUsed != 1 {
		t.Fatalf("expired cache must be cloned as-is, got InvocationsUsed=%d", got.metadata.InvocationsUsed)
	}
}

func TestScanCache_RecordsLastPromptTokens(t *testing.T) {
	events := []*session.Event{
		{Author: "a", UsageMetadata: &session.UsageMetadata{PromptTokenCount: 11}},
		{Author: "a", UsageMetadata: &session.UsageMetadata{PromptTokenCount: 42}},
	}
	got := scanCache(newCacheContext(t, "a", events), "a", 10)
	if got.lastPromptTokens != 42 {
		t.Fatalf("lastPromptTokens = %d, want 42", got.lastPromptTokens)
	}
}

func TestScanCache_IgnoresOtherAuthors(t *testing.T) {
	base := []*session.Event{
		{Author: "a", InvocationID: "inv-old", CacheMetadata: activeMetadata("mine"), UsageMetadata: &session.UsageMetadata{PromptTokenCount: 7}},
	}
	want := scanCache(newCacheContext(t, "a", base), "a", 10)

	// Interleave unrelated events everywhere; the result must not change.
	noisy := []*session.Event{
		{Author: "b", CacheMetadata: activeMetadata("theirs"), UsageMetadata: &session.UsageMetadata{PromptTokenCount: 999}},
		base[0],
		{Author: session.UserAuthor},
		{Author: "b", CacheMetadata: activeMetadata("theirs2")},
	}
	got := scanCache(newCacheContext(t, "a", noisy), "a", 10)

	if got.metadata.CacheName != want.metadata.CacheName ||
		got.metadata.InvocationsUsed != want.metadata.InvocationsUsed ||
		got.lastPromptTokens != want.lastPromptTokens {
		t.Fatalf("unrelated events changed the scan: got %+v/%d want %+v/%d",
			got.metadata, got.lastPromptTokens, want.metadata, want.lastPromptTokens)
	}
}

func TestCacheMetadata_Active(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		md   *session.CacheMetadata
		want bool
	}{
		{"nil", nil, false},
		{"no name", &session.CacheMetadata{}, false},
		{"active", &session.CacheMetadata{CacheName: "c", ExpireTime: now.Add(time.Minute), InvocationsUsed: 3}, true},
		{"expired", &session.CacheMetadata{CacheName: "c", ExpireTime: now.Add(-time.Minute)}, false},
		{"intervals exhausted", &session.CacheMetadata{CacheName: "c", ExpireTime: now.Add(time.Minute), InvocationsUsed: 10}, false},
	}
	for _, tt := range tests {
		if got := tt.md.Active(now, 10); got != tt.want {
			t.Errorf("%s: Active = %v, want %v", tt.name, got, tt.want)
		}
	}
}
