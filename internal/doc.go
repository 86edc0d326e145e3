// Package internal contains helper utilities that are intentionally private to ztgate,
// including secure random generation for session keys and peer identities.
//
// # What this package must NOT do
//
//   - Export types that appear in the public ztgate API.
//   - Be imported by any package outside the ztgate module.
package internal
