package kernel

import "testing"

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
		Code:    CodeNoMemory,
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestErrorResult(t *testing.T) {
	var nilErr *Error
	if exp, got := int32(42), nilErr.Result(42); got != exp {
		t.Fatalf("expected nil error to map to %d; got %d", exp, got)
	}

	err := &Error{Module: "foo", Message: "bar", Code: CodeNotOwner}
	if exp, got := int32(CodeNotOwner), err.Result(42); got != exp {
		t.Fatalf("expected error to map to %d; got %d", exp, got)
	}
}

func TestCodeTaxonomy(t *testing.T) {
	seen := make(map[Code]bool)
	for code := CodeTableFull; code >= CodeInvalidParam; code-- {
		if code >= 0 {
			t.Fatalf("expected code %d to be negative", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %d", code)
		}
		seen[code] = true

		if code.String() == "unknown error" {
			t.Errorf("expected code %d to have a name", code)
		}
	}

	if exp, got := "unknown error", Code(-1000).String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
