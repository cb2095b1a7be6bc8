// Package llm connects inboxreply to a chat completion service.
//
// A Provider wraps one SDK (OpenAI Chat Completions or Anthropic Messages).
// The Assistant builds the prompts on top of it:
//   - GenerateReply writes a contextual auto-reply from the incoming email,
//     using the rule's static message as inspiration
//   - ParseCommand turns "add an auto-reply for bob from 9am to 5pm" into an
//     autoreply.Intent
//   - DraftEmail turns a free-text instruction into a complete email
//
// Completions are traced (llm.<provider>.<kind>) and counted in
// llm_requests_total.
package llm
