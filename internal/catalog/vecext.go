//go:build sqlite_vec && cgo

package catalog

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Building with -tags sqlite_vec registers the sqlite-vec extension against
// mattn/go-sqlite3. The catalog itself always opens its database through
// modernc.org/sqlite and ranks embeddings with the brute-force cosine scan
// in ann.go, with or without the tag.
func init() {
	vec.Auto()
}
