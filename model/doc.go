// Package model defines the provider-agnostic abstractions for talking to
// language models and the Gateway that adapts them to core.ModelGateway.
//
// Providers (model/openai, model/anthropic) implement Model so the stages
// only ever see core.ModelGateway and stay decoupled from vendor SDKs.
// MockModel is a deterministic in-memory Model for tests and offline runs.
package model
