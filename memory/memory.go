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

// Package memory defines the long-term memory contract tools reach
// through the invocation context, plus a keyword-matching in-memory
// implementation used by tests and single-process deployments.
package memory

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/session"
)

// Entry is one recalled memory: the content of a stored event plus who
// authored it and when.
type Entry struct {
	Content   *genai.Content
	Author    string
	Timestamp time.Time
}

// SearchRequest scopes a memory search to one (app, user) pair.
type SearchRequest struct {
	App   string
	User  string
	Query string
}

// SearchResponse carries the matching entries.
type SearchResponse struct {
	Memories []Entry
}

// Service is the memory contract: ingest a finished session, search it
// later. Embedding-backed implementations are external collaborators;
// the runtime only needs this surface.
type Service interface {
	AddSession(ctx context.Context, sess *session.Session) error
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
}

type value struct {
	event *session.Event

	// precomputed word set of the content for keyword matching.
	words map[string]struct{}
}

type key struct {
	app, user string
}

type inMemoryService struct {
	mu    sync.RWMutex
	store map[key]map[string][]value
}

// NewInMemoryService returns a Service backed by process memory with
// simple keyword matching. Thread-safe.
func NewInMemoryService() Service {
	return &inMemoryService{store: map[key]map[string][]value{}}
}

func (s *inMemoryService) AddSession(ctx context.Context, sess *session.Session) error {
	var values []value
	for _, ev := range sess.Events {
		if ev.Content == nil {
			continue
		}
		words := map[string]struct{}{}
		for _, part := range ev.Content.Parts {
			if part.Text == "" {
				continue
			}
			for w := range extractWords(part.Text) {
				words[w] = struct{}{}
			}
		}
		if len(words) == 0 {
			continue
		}
		values = append(values, value{event: ev, words: words})
	}

	k := key{app: sess.App, user: sess.User}

	s.mu.Lock()
	defer s.mu.Unlock()
	bySession, ok := s.store[k]
	if !ok {
		bySession = map[string][]value{}
		s.store[k] = bySession
	}
	bySession[sess.ID] = values
	return nil
}

func (s *inMemoryService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	queryWords := extractWords(req.Query)
	k := key{app: req.App, user: req.User}

	s.mu.RLock()
	bySession, ok := s.store[k]
	s.mu.RUnlock()
	if !ok {
		return &SearchResponse{}, nil
	}

	res := &SearchResponse{}
	for _, values := range bySession {
		for _, v := range values {
			if wordsIntersect(v.words, queryWords) {
				res.Memories = append(res.Memories, Entry{
					Content:   v.event.Content,
					Author:    v.event.Author,
					Timestamp: v.event.Timestamp,
				})
			}
		}
	}
	return res, nil
}

func wordsIntersect(m1, m2 map[string]struct{}) bool {
	if len(m1) == 0 || len(m2) == 0 {
		return false
	}
	if len(m1) > len(m2) {
		m1, m2 = m2, m1
	}
	for w := range m1 {
		if _, ok := m2[w]; ok {
			return true
		}
	}
	return false
}

var wordRE = regexp.MustCompile(`[A-Za-z0-9]+`)

func extractWords(text string) map[string]struct{} {
	res := map[string]struct{}{}
	for _, word := range wordRE.FindAllString(text, -1) {
		res[strings.ToLower(word)] = struct{}{}
	}
	return res
}
