// Package api contains the HTTP handlers for the Mobile Core service:
// account registration and login, and authenticated media uploads that
// stream to object storage.
package api
