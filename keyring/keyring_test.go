package keyring

import (
	"errors"
	"testing"
)

func TestStoreGetDelete(t *testing.T) {
	MockInit()

	if err := Store("test-key", "test-value"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	value, err := Get("test-key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "test-value" {
		t.Errorf("Get() = %q, want test-value", value)
	}
	if !Exists("test-key") {
		t.Error("Exists() = false, want true")
	}

	if err := Delete("test-key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := Get("test-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestGet_Missing(t *testing.T) {
	MockInit()

	if _, err := Get("never-stored"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_RejectsEmptyInput(t *testing.T) {
	MockInit()

	if err := Store("", "value"); err == nil {
		t.Error("Store() with empty key should fail")
	}
	if err := Store("key", ""); err == nil {
		t.Error("Store() with empty value should fail")
	}
}
