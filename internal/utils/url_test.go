package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://content.dropboxapi.com"))
	assert.NoError(t, ValidateURL("http://127.0.0.1:8080"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("https://"))
	assert.Error(t, ValidateURL("::not a url"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "*****", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("short"))
	assert.Equal(t, "sl.B*****", MaskSecret("sl.BxyzLongToken"))
}
