package app

import (
	"context"

	roledomain "sso-hub/internal/role/domain"
)

// Bootstrap ensures a user with email exists and holds global super_admin, returning its id.
// An existing user keeps its credential; password only applies on first creation.
func Bootstrap(ctx context.Context, a *App, email, password string) (string, error) {
	u, err := a.Directory.FindActiveUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	var userID string
	if u != nil {
		userID = u.ID
	} else {
		userID, err = a.Directory.CreateUser(ctx, email, "", "", &password)
		if err != nil {
			return "", err
		}
	}
	created, err := a.Directory.GrantRole(ctx, userID, roledomain.RoleSuperAdmin, roledomain.Global())
	if err != nil {
		return "", err
	}
	if created {
		a.Log.WithField("user_id", userID).Info("granted super_admin")
	}
	return userID, nil
}
