package util

import (
	"errors"
	"testing"
	"time"
)

func TestGrantSigner_RoundTrip(t *testing.T) {
	signer := NewGrantSigner([]byte("test-secret"), time.Minute)

	grant, err := signer.Issue("tok1", "viewer-a")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := signer.Validate("tok1", "viewer-a", grant); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestGrantSigner_BoundToTokenAndViewer(t *testing.T) {
	signer := NewGrantSigner([]byte("test-secret"), time.Minute)

	grant, err := signer.Issue("tok1", "viewer-a")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if err := signer.Validate("tok2", "viewer-a", grant); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected rejection for other token, got %v", err)
	}
	if err := signer.Validate("tok1", "viewer-b", grant); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected rejection for other viewer, got %v", err)
	}
}

func TestGrantSigner_Expiry(t *testing.T) {
	signer := NewGrantSigner([]byte("test-secret"), -time.Second)

	grant, err := signer.Issue("tok1", "viewer-a")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := signer.Validate("tok1", "viewer-a", grant); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected expired grant rejection, got %v", err)
	}
}

func TestGrantSigner_MalformedInput(t *testing.T) {
	signer := NewGrantSigner([]byte("test-secret"), time.Minute)

	for _, grant := range []string{"", "nodot", "a.b", "!!!.###"} {
		if err := signer.Validate("tok1", "viewer-a", grant); !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected rejection for %q, got %v", grant, err)
		}
	}
}

func TestGrantSigner_MissingSecret(t *testing.T) {
	signer := NewGrantSigner(nil, time.Minute)

	if _, err := signer.Issue("tok1", "viewer-a"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if err := signer.Validate("tok1", "viewer-a", "x.y"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
