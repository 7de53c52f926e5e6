// Package services provides the shared error taxonomy and context plumbing
// used by the engine's collaborators (photo source, remote uploader) and the
// worker pool.
package services
