package utils

import (
	"testing"
)

func TestValidateServiceURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name:    "valid HTTPS URL",
			url:     "https://explorer.fuse.io",
			wantErr: false,
		},
		{
			name:    "valid HTTPS URL with path",
			url:     "https://chainid.network/chains.json",
			wantErr: false,
		},
		{
			name:    "invalid HTTP URL",
			url:     "http://explorer.fuse.io",
			wantErr: true,
		},
		{
			name:    "valid localhost for testing",
			url:     "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid 127.0.0.1 for testing",
			url:     "http://127.0.0.1:8080",
			wantErr: false,
		},
		{
			name:    "valid IPv6 localhost for testing",
			url:     "http://[::1]:8080",
			wantErr: false,
		},
		{
			name:    "invalid no protocol",
			url:     "explorer.fuse.io",
			wantErr: true,
		},
		{
			name:    "invalid empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "invalid ftp protocol",
			url:     "ftp://explorer.fuse.io",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServiceURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
