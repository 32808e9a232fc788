package services

import "github.com/google/uuid"

// requireCaller succeeds iff caller equals expected. Every mutating operation
// evaluates its caller check before touching state, so authorization failures
// never have side effects.
func requireCaller(caller, expected uuid.UUID) error {
	if caller != expected {
		return ErrNotAuthorized
	}
	return nil
}

// requireParty succeeds iff caller is one of the given identities.
func requireParty(caller uuid.UUID, parties ...uuid.UUID) error {
	for _, p := range parties {
		if caller == p {
			return nil
		}
	}
	return ErrNotAuthorized
}
