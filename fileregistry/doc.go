// Package fileregistry provides a filesystem-based prompt registry that loads
// YAML manifests on demand (lazy) and caches them. Use New to create a Registry;
// GetTemplate resolves name and env to {dir}/{name}.{env}.yaml (or .yml)
// with fallback to {dir}/{name}.yaml. List reports the available names.
package fileregistry
