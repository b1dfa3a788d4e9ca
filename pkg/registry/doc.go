// Package registry stores containers and stacks by id and answers the
// lookups the stacks themselves depend on: container resolution while
// deserializing, definition resolution for inheritance chains, and stack
// lookup for extruder re-linking.
//
// Containers enter the registry either directly via AddContainer or in bulk
// from a Provider, with file types resolved through a MimeDatabase and
// loading ordered so machines exist before the extruders that link to them.
package registry
