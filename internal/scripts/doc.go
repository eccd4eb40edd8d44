// Package scripts generates short-form video scripts.
//
// Generation tries each configured LLM provider in order, honouring a user's
// preferred provider, and falls back to a deterministic template when every
// provider fails or returns too little content. Each persisted script carries
// word count, estimated speaking time, token usage, cost, and a readability
// score.
package scripts
