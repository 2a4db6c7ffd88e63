// Package source reads appointments from the practice's scheduling system
// over its REST API. The engine only ever reads from the Source; nothing in
// this module writes back to it.
package source
