// Package model defines the provider-agnostic abstractions for talking to
// language models.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (model/openai, model/anthropic, model/googleai) implement Model so
// the agent loop stays decoupled from vendor SDKs.
package model
