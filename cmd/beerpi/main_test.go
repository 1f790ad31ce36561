package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "BeerPi") {
		t.Errorf("version output = %q, want BeerPi banner", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run(-o json version) error = %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out.String())
	}
	if _, ok := info["version"]; !ok {
		t.Errorf("JSON output missing version field: %s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"brew"})
	if err == nil {
		t.Fatal("run(brew) = nil, want error")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestRunFlagMissingValue(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-config"}); err == nil {
		t.Error("run(-config) without value = nil, want error")
	}
	if err := run(context.Background(), &out, &out, []string{"-o"}); err == nil {
		t.Error("run(-o) without value = nil, want error")
	}
}

func TestServeMissingExplicitConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", "/does/not/exist.yaml", "serve"})
	if err == nil {
		t.Fatal("serve with missing explicit config = nil, want error")
	}
}
