// Package credstore provides persistent storage backends for the serialized
// ERP session state.
//
// Supports four storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared storage for several processes acting as the same ERP user
//
// Backends store an opaque blob under a single namespaced key. Encoding the
// blob is the caller's concern (see package session).
package credstore
