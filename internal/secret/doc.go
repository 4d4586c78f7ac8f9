// Package secret stores the credentials OpsiMate uses to reach providers:
// SSH private keys and Kubernetes kubeconfig files.
//
// File contents live under security.private_keys_path; only metadata is
// kept in the database.
//
// Security Considerations:
//   - Files are written 0600 inside a 0700 directory
//   - File names are reduced to a bare base name; path components are rejected
//   - Contents are never logged or returned by the API
package secret
