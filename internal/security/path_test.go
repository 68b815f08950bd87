package security

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{name: "valid relative path", path: "config.json"},
		{name: "valid absolute path", path: "/etc/whatsdata/config.json"},
		{name: "empty path", path: "", wantErr: true, errMsg: "path cannot be empty"},
		{name: "traversal", path: "../../etc/passwd", wantErr: true, errMsg: "directory traversal"},
		{name: "embedded traversal", path: "config/../../etc/passwd", wantErr: true, errMsg: "directory traversal"},
		{name: "double dots inside a name", path: "backup..json", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePathWithBase(t *testing.T) {
	base := t.TempDir()

	assert.NoError(t, ValidateFilePathWithBase("output/data.json", base))
	assert.Error(t, ValidateFilePathWithBase("../data.json", base))
	assert.Error(t, ValidateFilePathWithBase(filepath.Join(base, "data.json"), base))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"kontak_saya.json", "kontak_saya.json"},
		{"kontak_saya", "kontak_saya.json"},
		{"../../etc/passwd", "passwd.json"},
		{`..\windows\system.ini`, "system.ini.json"},
		{"my file (1).json", "myfile1.json"},
		{"data<script>.json", "datascript.json"},
		{"", ""},
		{"..", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}
