//go:build sonic

package dbxsdk

import (
	"github.com/bytedance/sonic"
)

// for imroc/req and the Dropbox-API-Arg header
var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal
