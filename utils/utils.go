// Package utils provides utility functions for the application.
package utils

// DerefOr returns *p or def when p is nil
func DerefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
