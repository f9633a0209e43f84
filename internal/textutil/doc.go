// Package textutil provides text helpers shared by the store, the worker, and
// the CLI.
//
// The primary use cases are:
//   - Normalizing feature slugs and validating repository names
//   - Redacting credential-like substrings from captured diagnostics
//   - Capping persisted messages at a byte limit without splitting runes
package textutil
