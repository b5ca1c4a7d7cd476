// Package config loads the filesystem contract the out-of-scope network
// partitioner produces and this runtime consumes (spec.md §6):
// numParts.txt, partData<i>.json, and an optional partsim.yaml overlay
// for settings that are awkward to pass as command-line flags.
package config
