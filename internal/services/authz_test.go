package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRequireCaller(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	if err := requireCaller(a, a); err != nil {
		t.Errorf("matching caller: got %v, want nil", err)
	}
	if err := requireCaller(a, b); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("mismatched caller: got %v, want ErrNotAuthorized", err)
	}
	if err := requireCaller(uuid.Nil, a); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("nil caller: got %v, want ErrNotAuthorized", err)
	}
}

func TestRequireParty(t *testing.T) {
	client := uuid.New()
	freelancer := uuid.New()

	if err := requireParty(client, client, freelancer); err != nil {
		t.Errorf("client is a party: got %v, want nil", err)
	}
	if err := requireParty(freelancer, client, freelancer); err != nil {
		t.Errorf("freelancer is a party: got %v, want nil", err)
	}
	if err := requireParty(uuid.New(), client, freelancer); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("outsider: got %v, want ErrNotAuthorized", err)
	}
	if err := requireParty(client); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("no parties: got %v, want ErrNotAuthorized", err)
	}
}
