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
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fluxgraph/agentcore/invocation"
	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
)

// CacheConfig recognizes the bounds the context-cache processor enforces.
type CacheConfig struct {
	// CacheIntervals bounds how many invocations may reuse one cache
	// entry; must be in [1, 100], default 10.
	CacheIntervals int
	// TTLSeconds bounds how long a cache entry stays active; must be
	// positive, default 1800.
	TTLSeconds int
	// MinTokens is the minimum prompt size worth caching, default 0.
	MinTokens int
}

// DefaultCacheConfig returns the documented defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{CacheIntervals: 10, TTLSeconds: 1800, MinTokens: 0}
}

// Validate enforces the configured bounds.
func (c CacheConfig) Validate() error {
	if c.CacheIntervals < 1 || c.CacheIntervals > 100 {
		return fmt.Errorf("cache: CacheIntervals must be in [1, 100], got %d", c.CacheIntervals)
	}
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("cache: TTLSeconds must be positive, got %d", c.TTLSeconds)
	}
	if c.MinTokens < 0 {
		return fmt.Errorf("cache: MinTokens must be non-negative, got %d", c.MinTokens)
	}
	return nil
}

// cacheScanResult is what the session-event replay resolves to for one
// (agent, session) pair.
type cacheScanResult struct {
	metadata         *session.CacheMetadata
	lastPromptTokens int32
}

// scanCache implements the session-event replay rules verbatim: scan
// newest to oldest, consider only events authored by the current agent,
// seed the candidate from the first event with CacheMetadata, clone with
// an incremented InvocationsUsed when that metadata belongs to a prior
// invocation and is still active, and also record the most recent
// promptTokenCount for the agent. The scan depends only on events
// authored by the current agent, per the testable property that
// unrelated events must not change its output.
func scanCache(ictx *invocation.Context, agentName string, cacheIntervals int) cacheScanResult {
	sess := ictx.Session()
	if sess == nil {
		return cacheScanResult{}
	}
	var result cacheScanResult
	haveMetadata := false
	havePromptTokens := false

	for i := len(sess.Events) - 1; i >= 0; i-- {
		ev := sess.Events[i]
		if ev.Author != agentName {
			continue
		}
		if !haveMetadata && ev.CacheMetadata != nil {
			clone := ev.CacheMetadata.Clone()
			if ev.InvocationID != ictx.InvocationID() && clone.Active(nowFunc(), cacheIntervals) {
				clone.InvocationsUsed++
			}
			result.metadata = clone
			haveMetadata = true
		}
		if !havePromptTokens && ev.UsageMetadata != nil {
			result.lastPromptTokens = ev.UsageMetadata.PromptTokenCount
			havePromptTokens = true
		}
		if haveMetadata && havePromptTokens {
			break
		}
	}
	return result
}

// ContextCacheRequestProcessor adopts the most recent usable cache
// metadata for the current agent, memoizing the scan per (agent,
// session) pair for the lifetime of the returned processor (one Flow,
// which an LLMAgent builds per run) so repeated steps in one invocation
// do not re-walk the whole event log.
func ContextCacheRequestProcessor(cfg *CacheConfig) RequestProcessor {
	resolved := DefaultCacheConfig()
	if cfg != nil {
		resolved = *cfg
	}
	if err := resolved.Validate(); err != nil {
		resolved = DefaultCacheConfig()
	}
	memo, _ := lru.New[string, cacheScanResult](1024)

	return func(ictx *invocation.Context, req *llm.Request) ([]*session.Event, error) {
		agentName := ictx.Agent().Name()
		key := agentName + "/" + sessionKey(ictx)

		var result cacheScanResult
		if cached, ok := memo.Get(key); ok {
			result = cached
		} else {
			result = scanCache(ictx, agentName, resolved.CacheIntervals)
			memo.Add(key, result)
		}

		// Reuse only an entry that is still active and whose prompt was
		// big enough to be worth caching; otherwise leave the request
		// bare and let the provider adapter create a fresh cache.
		if result.metadata.Active(nowFunc(), resolved.CacheIntervals) &&
			int(result.lastPromptTokens) >= resolved.MinTokens {
			req.CacheName = result.metadata.CacheName
		}
		return nil, nil
	}
}

func sessionKey(ictx *invocation.Context) string {
	sess := ictx.Session()
	if sess == nil {
		return ictx.InvocationID()
	}
	return sess.App + "/" + sess.User + "/" + sess.ID
}

// nowFunc is a seam for tests; production code calls time.Now.
var nowFunc = defaultNow
