package main

import (
	"testing"

	"github.com/xorpgo/fabric/config"
)

func TestRunRejectsUnknownFlag(t *testing.T) {
	code := run([]string{"--bogus"})
	if code != config.ExitArgumentError {
		t.Fatalf("exit code = %d, want %d", code, config.ExitArgumentError)
	}
}

func TestRunRequiresEntityAndClass(t *testing.T) {
	code := run(nil)
	if code != config.ExitArgumentError {
		t.Fatalf("exit code = %d, want %d (entity/class are required flags)", code, config.ExitArgumentError)
	}
}
