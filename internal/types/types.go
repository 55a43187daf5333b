// Package types contains small generic containers shared by the softphone packages.
package types

// ContextKey is a type for context value keys.
type ContextKey string
