package fsworkspace

import "embed"

// templatesFS holds the files `invoke init` writes into a new workspace.
//
//go:embed all:templates
var templatesFS embed.FS
