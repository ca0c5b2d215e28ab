package core

import "github.com/mindconnect/mcl-go/mclerr"

// credentialStore wraps an Identity with the caller-supplied load/save
// callbacks and optional critical-section bracketing, per §4.D.
type credentialStore struct {
	load LoadCredentials
	save SaveCredentials
	lock CriticalSection
}

// loadIfConfigured invokes the load callback, if any, populating identity
// on success. It returns mclerr.CredentialsNotLoaded (wrapped) when no
// callback is configured or the callback reports nothing stored.
func (s *credentialStore) loadIfConfigured(identity *Identity) error {
	if s.load == nil {
		return mclerr.New(mclerr.CredentialsNotLoaded, "no load callback configured")
	}
	stored, err := s.load()
	if err != nil {
		return err
	}
	identity.fromStored(stored)
	return nil
}

// saveIfConfigured invokes the save callback, if any, after a mutation.
// A nil save callback is not an error: persistence is optional per §3.
func (s *credentialStore) saveIfConfigured(identity *Identity) error {
	if s.save == nil {
		return nil
	}
	if err := s.save(identity.toStored()); err != nil {
		return mclerr.Wrap(mclerr.CredentialsNotSaved, "save credentials", err)
	}
	return nil
}

func (s *credentialStore) enter() {
	if s.lock != nil {
		s.lock.Enter()
	}
}

func (s *credentialStore) leave() {
	if s.lock != nil {
		s.lock.Leave()
	}
}
