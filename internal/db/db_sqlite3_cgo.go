//go:build sqlite3_cgo

package db

// Built with -tags sqlite3_cgo: the cgo driver, for platforms where the wasm build is slow.
import _ "github.com/mattn/go-sqlite3"

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
