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

// Custom is an agent whose behavior is a caller-supplied RunImpl wrapped
// in the standard base lifecycle. Use it for orchestration logic that is
// not a model call and not one of the stock composites.
type Custom struct {
	*base
}

// NewCustom builds a custom agent around impl.
func NewCustom(name string, impl RunImpl, opts ...Option) (*Custom, error) {
	b, err := newBase(name, impl, opts...)
	if err != nil {
		return nil, err
	}
	return &Custom{base: b}, nil
}
