package rawstore

import "testing"

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://guestbook-raw/raw/acct-1/2026/05/16/x.json", "guestbook-raw", "raw/acct-1/2026/05/16/x.json", false},
		{"gs://bucket-only", "", "", true},
		{"https://example.com/file.json", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := parseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("parseGCSURI(%q) = %q, %q", tt.uri, bucket, object)
			}
		})
	}
}
