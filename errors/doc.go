// Package errors provides the structured error type used across streamkit.
// Every failure a stream reports carries a machine-readable code, a
// human-readable message and an optional cause, and matches the sentinel
// values below through the standard library's errors.Is.
package errors
