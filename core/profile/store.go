package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
)

type keySet struct {
	profile     string
	remember    string
	identifier  string
	institution string
}

var keys = map[Role]keySet{
	RoleStudent: {
		profile:     "studentProfile",
		remember:    "rememberMe",
		identifier:  "rememberedUsername",
		institution: "rememberedInstitution",
	},
	RoleTeacher: {
		profile:     "teacherProfile",
		remember:    "teacherRememberMe",
		identifier:  "teacherRememberedUsername",
		institution: "teacherRememberedInstitution",
	},
}

// Key returns the storage key holding the profile of role.
func Key(role Role) string {
	return keys[role].profile
}

// Store keeps at most one Profile per Role in a core.KeyValueStore, JSON encoded.
type Store struct {
	kv     core.KeyValueStore
	logger core.Logger
}

func NewStore(kv core.KeyValueStore, logger core.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

func keysOf(role Role) (keySet, error) {
	ks, ok := keys[role]
	if !ok {
		return keySet{}, errors.Wrapf(ErrUnknownRole, "%q", role)
	}
	return ks, nil
}

// Get returns the stored profile of role.
// ErrNotFound is returned when nothing is stored or the stored value cannot be decoded.
func (s *Store) Get(ctx context.Context, role Role) (Profile, error) {
	ks, err := keysOf(role)
	if err != nil {
		return Profile{}, err
	}
	raw, ok, err := s.kv.GetItem(ctx, ks.profile)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "reading %s", ks.profile)
	}
	if !ok || raw == "" {
		return Profile{}, ErrNotFound
	}

	var p Profile
	if err = json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn(fmt.Sprintf("discarding malformed %s", ks.profile), err)
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Set replaces the stored profile of role.
func (s *Store) Set(ctx context.Context, role Role, p Profile) error {
	ks, err := keysOf(role)
	if err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding profile")
	}
	return errors.Wrapf(s.kv.SetItem(ctx, ks.profile, string(data)), "writing %s", ks.profile)
}

// Clear removes the stored profile of role.
func (s *Store) Clear(ctx context.Context, role Role) error {
	ks, err := keysOf(role)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.kv.RemoveItem(ctx, ks.profile), "removing %s", ks.profile)
}

// Exists reports whether a profile of role is stored. Read errors count as absent.
func (s *Store) Exists(ctx context.Context, role Role) bool {
	_, err := s.Get(ctx, role)
	if err != nil && errors.Cause(err) != ErrNotFound {
		s.logger.Warn("checking stored profile", err)
	}
	return err == nil
}

// Remember saves (remember=true) or forgets the login fields of role.
func (s *Store) Remember(ctx context.Context, role Role, remember bool, r Remembered) error {
	ks, err := keysOf(role)
	if err != nil {
		return err
	}
	if !remember {
		return errors.Wrap(s.kv.RemoveItem(ctx, ks.remember, ks.identifier, ks.institution), "forgetting login")
	}
	for key, val := range map[string]string{
		ks.remember:    "true",
		ks.identifier:  r.Identifier,
		ks.institution: r.Institution,
	} {
		if err = s.kv.SetItem(ctx, key, val); err != nil {
			return errors.Wrapf(err, "writing %s", key)
		}
	}
	return nil
}

// Remembered returns the login fields saved for role; ok is false unless "remember me" was checked.
func (s *Store) Remembered(ctx context.Context, role Role) (r Remembered, ok bool, err error) {
	ks, err := keysOf(role)
	if err != nil {
		return Remembered{}, false, err
	}
	flag, _, err := s.kv.GetItem(ctx, ks.remember)
	if err != nil {
		return Remembered{}, false, errors.Wrapf(err, "reading %s", ks.remember)
	}
	if flag != "true" {
		return Remembered{}, false, nil
	}
	if r.Identifier, _, err = s.kv.GetItem(ctx, ks.identifier); err != nil {
		return Remembered{}, false, errors.Wrapf(err, "reading %s", ks.identifier)
	}
	if r.Institution, _, err = s.kv.GetItem(ctx, ks.institution); err != nil {
		return Remembered{}, false, errors.Wrapf(err, "reading %s", ks.institution)
	}
	return r, true, nil
}
