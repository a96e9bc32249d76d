package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"absolute sqlite path", "sqlite://" + filepath.Join(dir, "a.db"), false},
		{"sqlite with driver params", "sqlite://" + filepath.Join(dir, "b.db") + "?_busy_timeout=5000", false},
		{"unsupported scheme", "mysql://localhost/db", true},
		{"unparseable url", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, err := Open(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if database != nil {
				database.Close()
			}
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 9, 30, 15, 123456789, time.FixedZone("CEST", 2*3600))
	out, err := parseTime(formatTime(in))
	if err != nil {
		t.Fatalf("parseTime() error = %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("parseTime(formatTime(%v)) = %v", in, out)
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Error("parseTime(\"yesterday\") error = nil, want error")
	}
}
