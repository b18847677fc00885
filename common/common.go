// Package common holds project-wide constants and the logger setup shared by
// all binaries.
package common

// PackageName is used as the metrics namespace and the default service tag.
const PackageName = "github.com/custodia-vault/custodia"

// Version is set at build time via -ldflags.
var Version = "dev"
