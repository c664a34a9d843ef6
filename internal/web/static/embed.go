// Package static embeds the live view page.
package static

import (
	_ "embed"
)

//go:embed index.html
var indexHTML []byte

// Index returns the live view page.
func Index() []byte {
	return indexHTML
}
