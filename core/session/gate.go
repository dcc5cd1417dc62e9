package session

import (
	"context"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/profile"
)

type pages struct {
	login, signup, landing string
}

// Gate decides where a portal sends its visitor, based on the stored profile alone.
type Gate struct {
	profiles *profile.Store
	pages    map[profile.Role]pages
}

func NewGate(profiles *profile.Store, conf core.PagesConfig) *Gate {
	return &Gate{
		profiles: profiles,
		pages: map[profile.Role]pages{
			profile.RoleStudent: {login: conf.StudentLogin, signup: conf.StudentSignup, landing: conf.StudentLanding},
			profile.RoleTeacher: {login: conf.TeacherLogin, signup: conf.TeacherSignup, landing: conf.TeacherLanding},
		},
	}
}

func (g *Gate) IsSignedIn(ctx context.Context, role profile.Role) bool {
	return g.profiles.Exists(ctx, role)
}

// RouteAfterAuth is the landing page of role.
func (g *Gate) RouteAfterAuth(role profile.Role) string { return g.pages[role].landing }

func (g *Gate) RouteToLogin(role profile.Role) string { return g.pages[role].login }

func (g *Gate) RouteToSignup(role profile.Role) string { return g.pages[role].signup }

// Start returns the landing page when a profile of role is stored, the login page otherwise.
func (g *Gate) Start(ctx context.Context, role profile.Role) string {
	if g.IsSignedIn(ctx, role) {
		return g.RouteAfterAuth(role)
	}
	return g.RouteToLogin(role)
}
