//go:build tools

// Package tools pins build-time tool dependencies in go.mod.
package tools

import (
	_ "github.com/swaggo/swag"
)
