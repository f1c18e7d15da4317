// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic streaming interface to Large
// Language Model APIs with tool-use support.
//
// The primary abstraction is [Provider]. [OpenAI] speaks the Chat
// Completions wire format used by DeepSeek, OpenAI and Gemini's
// compatible endpoint. [Scripted] and [Echo] answer without a network.
// A [Registry] resolves the provider name stored in a room's AI
// configuration.
//
// Streaming uses Server-Sent Events, parsed by [SSEScanner]. The
// [EventStream] type wraps a streaming response, yielding [StreamEvent]
// values as they arrive while accumulating the complete [Response]
// (text, tool calls and reasoning) internally.
package llm
