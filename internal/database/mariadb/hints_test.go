package mariadb

import "testing"

func TestBucketPrefixFromPath(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"archive/bkt_a1b2c3/derived/web_front.jpg", "a1b2c3", true},
		{"bkt_ff00/originals/scan.tif", "ff00", true},
		{`scans\bkt_00aa\raw.jpg`, "00aa", true},
		{"archive/bkt_/raw.jpg", "", false},
		{"2019/holiday/IMG_0001.jpg", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := BucketPrefixFromPath(tt.path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("BucketPrefixFromPath(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
