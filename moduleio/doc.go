// Package moduleio implements the module image format (spec.md §3.3/§6.1):
// a packager that links one or more compiled units into a single module
// file, and a loader that validates and reads one back.
package moduleio
