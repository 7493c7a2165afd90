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

package llm

import (
	"context"
	"iter"
	"sync/atomic"
)

// Fake is a deterministic, in-memory Model used by tests: it replays a
// fixed script of responses, one per call, and never talks to a
// network.
type Fake struct {
	name      string
	responses []*Response
	calls     int64
}

// NewFake returns a Fake that yields responses in order, one per
// Generate/GenerateStream call. The last response repeats once the
// script is exhausted.
func NewFake(name string, responses ...*Response) *Fake {
	return &Fake{name: name, responses: responses}
}

func (f *Fake) Name() string { return f.name }

// Calls returns how many times Generate or GenerateStream was invoked.
func (f *Fake) Calls() int { return int(atomic.LoadInt64(&f.calls)) }

func (f *Fake) next() *Response {
	i := int(atomic.AddInt64(&f.calls, 1)) - 1
	if i >= len(f.responses) {
		if len(f.responses) == 0 {
			return &Response{}
		}
		i = len(f.responses) - 1
	}
	return f.responses[i]
}

func (f *Fake) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f.next(), nil
}

func (f *Fake) GenerateStream(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		yield(f.next(), nil)
	}
}
