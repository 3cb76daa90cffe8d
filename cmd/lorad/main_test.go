package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"help"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	if !strings.Contains(out.String(), "serve") || !strings.Contains(out.String(), "sim") {
		t.Fatalf("usage missing commands: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"frobnicate"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code: got %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("missing error: %q", errOut.String())
	}
}

func TestRunServeRejectsBadConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"serve", "--transport", "carrier-pigeon"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit code: got %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "transport") {
		t.Fatalf("missing error: %q", errOut.String())
	}
}

func TestRunServeRejectsBadFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"serve", "--nope"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit code: got %d, want 2", code)
	}
}
