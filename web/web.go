// Package web holds the page served at "/" and its static assets.
//
// The page runs the ui flows compiled to WebAssembly. Build the bundle with
//
//	go generate ./web
//
// which writes static/webui.wasm and static/wasm_exec.js. Both are embedded
// into binaries built afterwards, and STATIC_DIR (default web/static) serves
// them from disk as well.
package web

import (
	"embed"
	"errors"
	"io/fs"
)

//go:generate env GOOS=js GOARCH=wasm go build -o static/webui.wasm ../cmd/webui
//go:generate sh -c "cp \"$(go env GOROOT)/lib/wasm/wasm_exec.js\" static/ 2>/dev/null || cp \"$(go env GOROOT)/misc/wasm/wasm_exec.js\" static/"

//go:embed static
var content embed.FS

// Static returns the embedded assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

type overlay struct {
	primary, fallback fs.FS
}

// Overlay serves files from primary and falls back to fallback for names
// primary does not have.
func Overlay(primary, fallback fs.FS) fs.FS {
	return overlay{primary: primary, fallback: fallback}
}

func (o overlay) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return o.fallback.Open(name)
	}
	return f, err
}
