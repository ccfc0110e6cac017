// Package gitdeps provides commit dependency inference and a real-time web interface for the result.
package gitdeps

import (
	"embed"
	"io/fs"
)

//go:embed all:web
var embeddedFS embed.FS

// GetWebFS returns the embedded filesystem for serving static web assets.
func GetWebFS() (fs.FS, error) {
	webFS, err := fs.Sub(embeddedFS, "web")
	if err != nil {
		return nil, err
	}
	return webFS, nil
}
