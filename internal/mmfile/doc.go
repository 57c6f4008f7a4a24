//go:build unix

// Package mmfile provides platform-specific helpers for mapping snapshot
// images and allocating guest RAM.
package mmfile
