// Package resources embeds the flash algorithm descriptors and the register
// maps they reference.
package resources

import (
	"embed"
	"io/fs"
)

//go:embed algo/*.json svd/*.svd
var files embed.FS

// FS holds algo/*.json and svd/*.svd. Descriptors name their register map
// relative to its root, for example "svd/STM32G4.svd".
func FS() fs.FS {
	return files
}

// Algos holds only the descriptors.
func Algos() fs.FS {
	sub, err := fs.Sub(files, "algo")
	if err != nil {
		panic(err)
	}
	return sub
}
