// Package config loads inboxreply's settings from ~/.config/inboxreply/config.yaml,
// a .env file and INBOXREPLY_* environment variables.
//
// Nested keys map to environment variables by replacing dots with
// underscores: llm.api_key is INBOXREPLY_LLM_API_KEY. When no LLM key is
// configured, OPENAI_API_KEY or ANTHROPIC_API_KEY is used depending on the
// provider.
package config
