package invocations

import "testing"

func TestExtract_Success(t *testing.T) {
	body := []byte(`{"token":"abc123","user":{"id":7}}`)

	val, text, err := Extract(body, "$.token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "abc123" || text != "abc123" {
		t.Fatalf("expected token=abc123, got val=%v text=%q", val, text)
	}

	_, text, err = Extract(body, "$.user.id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "7" {
		t.Fatalf("expected user.id=7, got=%q", text)
	}
}

func TestExtract_NonJSONBody(t *testing.T) {
	if _, _, err := Extract([]byte("hello"), "$.token"); err == nil {
		t.Fatalf("expected error for non-JSON body")
	}
}

func TestExtract_Bool(t *testing.T) {
	_, text, err := Extract([]byte(`{"active":true}`), "$.active")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "true" {
		t.Fatalf("expected active=true, got %q", text)
	}
}

func TestExtract_ObjectRendersJSON(t *testing.T) {
	val, text, err := Extract([]byte(`{"meta":{"key":"val"}}`), "$.meta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := val.(map[string]any); !ok {
		t.Fatalf("expected map value, got %T", val)
	}
	if text != `{"key":"val"}` {
		t.Fatalf("expected JSON text, got %q", text)
	}
}

func TestExtract_ArrayWildcard(t *testing.T) {
	val, text, err := Extract([]byte(`{"items":[{"n":1},{"n":2}]}`), "$.items[*].n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l, ok := val.([]any); !ok || len(l) != 2 {
		t.Fatalf("expected two values, got %v", val)
	}
	if text != "[1,2]" {
		t.Fatalf("expected [1,2], got %q", text)
	}
}

func TestExtract_Missing(t *testing.T) {
	if _, _, err := Extract([]byte(`{"a":""}`), "$.a"); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, _, err := Extract([]byte(`{"a":1}`), "  "); err == nil {
		t.Fatalf("expected error for empty expression")
	}
	if _, _, err := Extract([]byte(`{"a":1}`), "$.b"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
