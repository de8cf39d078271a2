// Package storage persists single JSON documents on local disk.
//
// Writes go to a sibling temp file which is synced and renamed over the
// target, so readers never observe a partially written document.
package storage
