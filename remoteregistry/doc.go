// Package remoteregistry provides a remote prompt registry that loads YAML manifests
// via a Fetcher (HTTP, or Git in the git subpackage). It caches templates with a
// configurable TTL, collapses concurrent fetches of the same template with singleflight
// and supports Bearer token authentication. GetTemplate returns a cloned template by
// name and environment.
package remoteregistry
