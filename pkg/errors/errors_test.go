package errors

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "detection error",
			category:   CategoryDetection,
			code:       CodeColumnNotDetected,
			message:    "no date column",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeQueryFailed,
			message:    "insert failed",
			cause:      errors.New("disk full"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryParse, CodeInvalidFormat, "test error").
		WithContext("source", "bank.csv").
		WithContext("row", 42).
		WithSuggestion("check file")

	if err.Context["source"] != "bank.csv" {
		t.Errorf("expected source context 'bank.csv', got %v", err.Context["source"])
	}
	if err.Context["row"] != 42 {
		t.Errorf("expected row context 42, got %v", err.Context["row"])
	}

	expected := "test error (suggestion: check file)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestColumnDetectionError(t *testing.T) {
	available := []string{"Fecha Pago", "Importe", "Notas"}
	err := ColumnDetectionError("bank", []string{"date"}, available)

	if err.Category != CategoryDetection || err.Code != CodeColumnNotDetected {
		t.Fatalf("unexpected category/code %s/%s", err.Category, err.Code)
	}
	if !strings.Contains(err.Message, "date") {
		t.Errorf("message %q should name the missing field", err.Message)
	}

	// Wrapped errors still expose the payload.
	wrapped := Wrap(err, CategoryReconciliation, CodeProjectionFailed, "projection")
	var outer error = wrapped
	if got := AvailableColumns(outer); !reflect.DeepEqual(got, available) {
		t.Errorf("AvailableColumns() = %v, want %v", got, available)
	}

	if got := MissingFields(err); !reflect.DeepEqual(got, []string{"date"}) {
		t.Errorf("MissingFields() = %v, want [date]", got)
	}

	// The payload is a copy.
	available[0] = "changed"
	if AvailableColumns(err)[0] != "Fecha Pago" {
		t.Error("detection error must not alias the caller's slice")
	}

	if AvailableColumns(errors.New("plain")) != nil {
		t.Error("expected nil columns for a plain error")
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeSheetNotFound, "book.xlsx", "Banco", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if !strings.Contains(err.Message, "Banco") {
			t.Errorf("expected sheet name in message, got %s", err.Message)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeInvalidDate, "start_date", "2024-13-01", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["value"] != "2024-13-01" {
			t.Errorf("expected value context, got %v", err.Context["value"])
		}
	})

	t.Run("StorageError", func(t *testing.T) {
		err := StorageError(CodeRunNotFound, "abc", nil)

		if !IsCode(err, CodeRunNotFound) {
			t.Errorf("expected run_not_found, got %s", err.Code)
		}
		if err.GetExitCode() != 6 {
			t.Errorf("expected exit code 6, got %d", err.GetExitCode())
		}
	})
}

func TestAsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsReconcilerError(reconcilerErr); !ok || extracted != reconcilerErr {
		t.Error("expected AsReconcilerError to extract ReconcilerError")
	}
	if _, ok := AsReconcilerError(genericErr); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}
	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if WrapIfNeeded(reconcilerErr, CategoryParse, CodeInvalidFormat, "wrapped") != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	wrapped := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if wrapped.Cause != genericErr || wrapped.Category != CategoryParse {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryDetection, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryStorage, 6},
		{ErrorCategory("other"), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}
