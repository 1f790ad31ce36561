package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "BeerPi ") {
		t.Errorf("String() = %q, want BeerPi prefix", s)
	}
	if !strings.Contains(s, Version) {
		t.Errorf("String() = %q, want version %q included", s, Version)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
}
