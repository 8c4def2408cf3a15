//go:build !sonic

package dbxsdk

import (
	"github.com/goccy/go-json"
)

// for imroc/req and the Dropbox-API-Arg header
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
