// Package web holds the embedded document templates.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var content embed.FS

// TemplatesFS returns the templates file system.
func TemplatesFS() fs.FS {
	sub, err := fs.Sub(content, "templates")
	if err != nil {
		panic("web: templates sub-filesystem: " + err.Error())
	}
	return sub
}
