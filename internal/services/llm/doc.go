// Package llm provides chat clients for the hosted language models used to
// write video scripts.
//
// Two providers are implemented behind the Provider interface:
//   - Client: OpenAI-compatible chat completions (Bearer auth)
//   - AnthropicClient: Anthropic Messages API (x-api-key auth)
//
// # Entry Points
//
// NewClient / NewAnthropicClient: construct a provider from Config.
// Provider.Complete: send system/user prompts, receive text plus token usage.
// Client.CompleteJSON: JSON-only completion, decoded with DecodeLLMJSON.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// Both clients retry on HTTP 408/429/5xx errors, empty completions, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After headers are honoured up to the max delay. Context
// cancellation aborts retries immediately.
//
// # Fallback
//
// Callers own fallback: the script generator moves on to the next provider
// and finally to its template engine when every provider fails.
package llm
