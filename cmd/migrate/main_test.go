package main

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init.sql", true, "0001", "init"},
		{"0002_add_origin_fingerprint.sql", true, "0002", "add_origin_fingerprint"},
		{"001_invalid.sql", false, "", ""},       // wrong number format
		{"0001_test", false, "", ""},             // missing .sql
		{"0001.sql", false, "", ""},              // missing name
		{"invalid_0001_test.sql", false, "", ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := pattern.FindStringSubmatch(tt.filename)
			if (matches != nil) != tt.valid {
				t.Fatalf("match = %v, want valid %v", matches != nil, tt.valid)
			}
			if tt.valid && (matches[1] != tt.version || matches[2] != tt.name) {
				t.Errorf("parsed %q/%q, want %q/%q", matches[1], matches[2], tt.version, tt.name)
			}
		})
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	content1 := []byte("CREATE TABLE test (id INT64);")
	content2 := []byte("CREATE TABLE test (id INT64);")
	content3 := []byte("CREATE TABLE different (id INT64);")

	sum1 := fmt.Sprintf("%x", sha256.Sum256(content1))
	sum2 := fmt.Sprintf("%x", sha256.Sum256(content2))
	sum3 := fmt.Sprintf("%x", sha256.Sum256(content3))

	if sum1 != sum2 {
		t.Error("same content should produce the same checksum")
	}
	if sum1 == sum3 {
		t.Error("different content should produce different checksums")
	}
}
