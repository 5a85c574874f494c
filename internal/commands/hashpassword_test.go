package commands

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_Stdin(t *testing.T) {
	var out bytes.Buffer
	if err := HashPassword([]string{"-stdin"}, strings.NewReader("s3cret\n"), &out); err != nil {
		t.Fatal(err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("printed hash does not match the password: %v", err)
	}
}

func TestHashPassword_Errors(t *testing.T) {
	var out bytes.Buffer
	if err := HashPassword([]string{"-stdin"}, strings.NewReader("\n"), &out); err == nil {
		t.Fatal("expected an error for an empty password")
	}
	if err := HashPassword(nil, strings.NewReader("s3cret\n"), &out); err == nil {
		t.Fatal("expected an error when stdin is not a terminal")
	}
}
