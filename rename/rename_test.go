package rename

import (
	"errors"
	"testing"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
)

func TestParseBuildsBidirectionalTable(t *testing.T) {
	tbl, err := Parse("speed:veh_speed, heading:veh_heading")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Alias("speed"); got != "veh_speed" {
		t.Fatalf("expected alias veh_speed, got %s", got)
	}
	if got := tbl.Original("veh_heading"); got != "heading" {
		t.Fatalf("expected original heading, got %s", got)
	}
}

func TestParseEmptySpecIsEmptyTable(t *testing.T) {
	tbl, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Alias("x"); got != "x" {
		t.Fatalf("expected unmapped name to pass through unchanged, got %s", got)
	}
}

func TestParseMalformedPairFails(t *testing.T) {
	_, err := Parse("speed-veh_speed")
	if !errors.Is(err, coreerr.ErrInvalidArg) {
		t.Fatalf("expected ERR_INVALID_ARG for malformed pair, got %v", err)
	}
}

func TestParseDuplicateOriginalFails(t *testing.T) {
	_, err := Parse("speed:a,speed:b")
	if !errors.Is(err, coreerr.ErrInvalidArg) {
		t.Fatalf("expected ERR_INVALID_ARG for duplicate original key, got %v", err)
	}
}

func TestParseInvalidAliasCharactersFails(t *testing.T) {
	_, err := Parse("speed:veh-speed!")
	if !errors.Is(err, coreerr.ErrInvalidArg) {
		t.Fatalf("expected ERR_INVALID_ARG for alias with invalid characters, got %v", err)
	}
}

func TestParseAliasCollisionBetweenOriginalsFails(t *testing.T) {
	_, err := Parse("speed:veh_speed, heading:veh_speed")
	if !errors.Is(err, coreerr.ErrNotSupported) {
		t.Fatalf("expected ERR_NOT_SUPPORTED for alias collision between two distinct originals, got %v", err)
	}
}

func TestHasAliasDetectsCrossOriginalCollision(t *testing.T) {
	tbl, err := Parse("speed:veh_speed")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.HasAlias("veh_speed", "speed") {
		t.Fatalf("expected no collision when alias belongs to the same original")
	}
	if !tbl.HasAlias("veh_speed", "heading") {
		t.Fatalf("expected collision when alias already belongs to a different original")
	}
}

func TestNilTableIsPassthrough(t *testing.T) {
	var tbl *Table
	if got := tbl.Alias("x"); got != "x" {
		t.Fatalf("expected nil table Alias to pass through, got %s", got)
	}
	if got := tbl.Original("y"); got != "y" {
		t.Fatalf("expected nil table Original to pass through, got %s", got)
	}
	if tbl.HasAlias("y", "z") {
		t.Fatalf("expected nil table HasAlias to report false")
	}
}
