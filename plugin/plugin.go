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

// Package plugin implements the plugin manager: an ordered list of named hook bundles that run before the equivalent
// agent/tool/model level callback, with the same first-non-empty-wins
// rule. Hook signatures are kept to the minimal surface their callers
// need (InvocationID/AgentName, tool.Context/tool.Tool,
// llm.Request/Response) specifically so this package stays a leaf: it
// is imported by agent and flow, and must never import either back.
package plugin

import (
	"errors"

	"google.golang.org/genai"

	"github.com/fluxgraph/agentcore/llm"
	"github.com/fluxgraph/agentcore/session"
	"github.com/fluxgraph/agentcore/tool"
)

// AgentContext is the minimal surface agent- and model-level hooks
// need. agent.CallbackContext (and flow's internal equivalent) satisfy
// it structurally without this package importing agent.
type AgentContext interface {
	InvocationID() string
	AgentName() string
}

type (
	BeforeAgentCallback func(AgentContext) (*genai.Content, error)
	AfterAgentCallback  func(AgentContext) (*genai.Content, error)

	BeforeModelCallback  func(ctx AgentContext, req *llm.Request) (*llm.Response, error)
	AfterModelCallback   func(ctx AgentContext, resp *llm.Response, respErr error) (*llm.Response, error)
	OnModelErrorCallback func(ctx AgentContext, req *llm.Request, modelErr error) (*llm.Response, error)

	BeforeToolCallback  func(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error)
	AfterToolCallback   func(ctx tool.Context, t tool.Tool, args, result map[string]any, toolErr error) (map[string]any, error)
	OnToolErrorCallback func(ctx tool.Context, t tool.Tool, args map[string]any, toolErr error) (map[string]any, error)

	OnEventCallback       func(ctx AgentContext, ev *session.Event) (*session.Event, error)
	OnUserMessageCallback func(ctx AgentContext, content *genai.Content) (*genai.Content, error)
)

// Plugin is one named bundle of lifecycle hooks; any field left nil is
// skipped when the Manager runs it.
type Plugin struct {
	Name string

	BeforeAgentCallback BeforeAgentCallback
	AfterAgentCallback  AfterAgentCallback

	BeforeModelCallback  BeforeModelCallback
	AfterModelCallback   AfterModelCallback
	OnModelErrorCallback OnModelErrorCallback

	BeforeToolCallback  BeforeToolCallback
	AfterToolCallback   AfterToolCallback
	OnToolErrorCallback OnToolErrorCallback

	OnEventCallback       OnEventCallback
	OnUserMessageCallback OnUserMessageCallback
}

// Config builds a Plugin; field-for-field identical to Plugin itself,
// kept separate so construction reads as "configure, then build" the
// way the teacher's plugin.New(plugin.Config{...}) does.
type Config Plugin

// ErrPluginNameRequired is returned by New when Config.Name is empty.
var ErrPluginNameRequired = errors.New("plugin: name is required")

// New validates and builds a Plugin from Config.
func New(cfg Config) (*Plugin, error) {
	if cfg.Name == "" {
		return nil, ErrPluginNameRequired
	}
	p := Plugin(cfg)
	return &p, nil
}

// Manager runs an ordered list of plugins. Every method is nil-receiver
// safe so a Manager is optional everywhere it is consulted.
type Manager struct {
	plugins []Plugin
}

// NewManager builds a Manager over an ordered list of plugins; earlier
// plugins run first and win ties under the first-non-empty rule.
func NewManager(plugins ...Plugin) *Manager {
	return &Manager{plugins: plugins}
}

func (m *Manager) BeforeAgent(actx AgentContext) (*genai.Content, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.BeforeAgentCallback == nil {
			continue
		}
		content, err := p.BeforeAgentCallback(actx)
		if err != nil {
			return nil, err
		}
		if content != nil {
			return content, nil
		}
	}
	return nil, nil
}

func (m *Manager) AfterAgent(actx AgentContext) (*genai.Content, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.AfterAgentCallback == nil {
			continue
		}
		content, err := p.AfterAgentCallback(actx)
		if err != nil {
			return nil, err
		}
		if content != nil {
			return content, nil
		}
	}
	return nil, nil
}

func (m *Manager) BeforeModel(actx AgentContext, req *llm.Request) (*llm.Response, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.BeforeModelCallback == nil {
			continue
		}
		resp, err := p.BeforeModelCallback(actx, req)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

func (m *Manager) AfterModel(actx AgentContext, resp *llm.Response, respErr error) (*llm.Response, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.AfterModelCallback == nil {
			continue
		}
		overridden, err := p.AfterModelCallback(actx, resp, respErr)
		if err != nil {
			return nil, err
		}
		if overridden != nil {
			return overridden, nil
		}
	}
	return nil, nil
}

func (m *Manager) OnModelError(actx AgentContext, req *llm.Request, modelErr error) (*llm.Response, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.OnModelErrorCallback == nil {
			continue
		}
		resp, err := p.OnModelErrorCallback(actx, req, modelErr)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

func (m *Manager) BeforeTool(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.BeforeToolCallback == nil {
			continue
		}
		result, err := p.BeforeToolCallback(ctx, t, args)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

func (m *Manager) AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, toolErr error) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.AfterToolCallback == nil {
			continue
		}
		overridden, err := p.AfterToolCallback(ctx, t, args, result, toolErr)
		if err != nil {
			return nil, err
		}
		if overridden != nil {
			return overridden, nil
		}
	}
	return nil, nil
}

func (m *Manager) OnToolError(ctx tool.Context, t tool.Tool, args map[string]any, toolErr error) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	for _, p := range m.plugins {
		if p.OnToolErrorCallback == nil {
			continue
		}
		result, err := p.OnToolErrorCallback(ctx, t, args, toolErr)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

func (m *Manager) OnEvent(actx AgentContext, ev *session.Event) (*session.Event, error) {
	if m == nil {
		return ev, nil
	}
	for _, p := range m.plugins {
		if p.OnEventCallback == nil {
			continue
		}
		overridden, err := p.OnEventCallback(actx, ev)
		if err != nil {
			return nil, err
		}
		if overridden != nil {
			ev = overridden
		}
	}
	return ev, nil
}

func (m *Manager) OnUserMessage(actx AgentContext, content *genai.Content) (*genai.Content, error) {
	if m == nil {
		return content, nil
	}
	for _, p := range m.plugins {
		if p.OnUserMessageCallback == nil {
			continue
		}
		overridden, err := p.OnUserMessageCallback(actx, content)
		if err != nil {
			return nil, err
		}
		if overridden != nil {
			content = overridden
		}
	}
	return content, nil
}
