// Package main is the emmcingest entry point.
//
// emmcingest converts an eMMC specification PDF into ordered,
// context-annotated chunks ready for retrieval indexing.
//
// Usage:
//
//	emmcingest ingest JESD84-B51.pdf
//	emmcingest toc JESD84-B51.pdf
//
// See --help for all available options.
package main

func main() {
	Execute()
}
