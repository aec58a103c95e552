package audit

import (
	"strings"
	"testing"
)

func TestBuildQueryNumbersPlaceholdersInOrder(t *testing.T) {
	query, args := buildQuery(Filter{Action: ActionHistoryDelete, EntityID: "e-1"})
	if !strings.Contains(query, "action = $1") || !strings.Contains(query, "entity_id = $2") {
		t.Fatalf("unexpected query %s", query)
	}
	if len(args) != 2 || args[0] != ActionHistoryDelete || args[1] != "e-1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildQueryWithoutFilters(t *testing.T) {
	query, args := buildQuery(Filter{})
	if strings.Contains(query, "$") || len(args) != 0 {
		t.Fatalf("expected no placeholders, got %s %v", query, args)
	}
}

func TestMarshalOptionalNil(t *testing.T) {
	out, err := marshalOptional(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil payload, got %s %v", out, err)
	}
}
