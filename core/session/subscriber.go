package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
)

// Unsubscribe stops a subscription started by Subscribe.
type Unsubscribe func()

type subscription struct {
	role profile.Role

	mu      sync.Mutex
	lastUID string // uid of the latest signed-in user seen
}

func (sub *subscription) seen(usr *identity.User) string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if usr != nil {
		sub.lastUID = usr.UID
	}
	return sub.lastUID
}

// Subscribe mirrors the identity service's auth state into the stored profile of role:
// a signed-in user's record replaces the profile, a sign-out clears it.
// A record tagged with a role no subscribed portal serves signs the user out instead;
// a record tagged with another subscribed portal's role is left to that portal.
// onChange, if not nil, is called once each change has been reconciled.
// Without an identity service, Subscribe does nothing.
func (r *Reconciler) Subscribe(role profile.Role, onChange identity.AuthChangeFunc) Unsubscribe {
	if r.adapter == nil {
		return func() {}
	}

	r.addPortal(role)
	sub := &subscription{role: role}
	stop := r.adapter.OnAuthChange(func(usr *identity.User) {
		r.reconcile(context.Background(), sub, usr)
		if onChange != nil {
			onChange(usr)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			r.removePortal(role)
		})
	}
}

func (r *Reconciler) addPortal(role profile.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.portals == nil {
		r.portals = make(map[profile.Role]int)
	}
	r.portals[role]++
}

func (r *Reconciler) removePortal(role profile.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.portals[role]--; r.portals[role] <= 0 {
		delete(r.portals, role)
	}
}

// serves reports whether a subscription of role is active.
func (r *Reconciler) serves(role profile.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portals[role] > 0
}

func (r *Reconciler) portalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portals)
}

func (r *Reconciler) reconcile(ctx context.Context, sub *subscription, usr *identity.User) {
	role := sub.role
	lastUID := sub.seen(usr)

	if usr == nil {
		// keep profiles of other users, e.g. the student signed in before a teacher came and went
		if lastUID != "" {
			if stored, err := r.profiles.Get(ctx, role); err == nil && stored.RemoteID != lastUID {
				return
			}
		}
		if err := r.profiles.Clear(ctx, role); err != nil {
			r.logger.Error("clearing profile on sign-out", err)
		}
		return
	}

	rec, err := r.adapter.GetUserData(ctx, usr.UID)
	if err != nil {
		if errors.Cause(err) != identity.ErrNoRecord {
			r.logger.Warn("fetching user record on auth change", err, map[string]interface{}{
				"role": role.String(),
				"uid":  usr.UID,
			})
		}
		return
	}

	switch tag := profile.Role(strings.ToLower(core.CleanString(rec.Role))); {
	case tag == "":
		// untagged records only take a free slot when several portals share the service
		if r.portalCount() > 1 && !r.slotFreeFor(ctx, role, usr.UID) {
			return
		}
	case tag == role:
	case r.serves(tag):
		return
	default:
		r.logger.Info("signing out user of another role", map[string]interface{}{
			"expected": role.String(),
			"got":      tag.String(),
			"uid":      usr.UID,
		})
		if err = r.adapter.SignOut(ctx); err != nil {
			r.logger.Warn("remote sign-out", identity.MapError(err))
		}
		if err = r.profiles.Clear(ctx, role); err != nil {
			r.logger.Error("clearing profile", err)
		}
		return
	}

	prof := FromRecord(rec, role)
	prof.RemoteID = usr.UID
	if prof.Email == "" {
		prof.Email = usr.Email
	}
	if err = r.profiles.Set(ctx, role, prof); err != nil {
		r.logger.Error("storing profile on auth change", err)
	}
}

// slotFreeFor reports whether role has no stored profile, or one of uid.
func (r *Reconciler) slotFreeFor(ctx context.Context, role profile.Role, uid string) bool {
	stored, err := r.profiles.Get(ctx, role)
	if err != nil {
		return errors.Cause(err) == profile.ErrNotFound
	}
	return stored.RemoteID == uid
}
