//go:build js && wasm

package main

import (
	"log"

	"github.com/Brownie44l1/imageclassifier/internal/client"
	"github.com/Brownie44l1/imageclassifier/internal/ui"
	"github.com/Brownie44l1/imageclassifier/internal/ui/dom"
)

func main() {
	c := client.New(dom.Origin())

	if _, err := ui.Bind(dom.New(), c); err != nil {
		log.Fatalf("Failed to bind page: %v", err)
	}

	select {}
}
