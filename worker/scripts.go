package worker

import (
	"embed"
	"io/fs"
)

const (
	// ScriptWorker is the self-unregistering service worker.
	ScriptWorker = "sw.js"
	// ScriptClear defines clearAll() for the browser console.
	ScriptClear = "sw-clear.js"
)

//go:embed js/*.js
var scripts embed.FS

// Script returns the named embedded script.
func Script(name string) ([]byte, error) {
	return scripts.ReadFile("js/" + name)
}

// Scripts returns all embedded scripts, rooted at their names.
func Scripts() fs.FS {
	sub, err := fs.Sub(scripts, "js")
	if err != nil {
		panic(err)
	}
	return sub
}
