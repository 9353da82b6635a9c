// Package memory provides support logic the curator and CLI share:
// session-id auto-detection from the current git directory, and
// content chunking for records too large to store as one row.
package memory
