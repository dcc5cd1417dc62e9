package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core/account"
)

// addUser creates the account of na, or reactivates the existing one and sets its password.
func (cli *commandLine) addUser(na account.NewAccount) error {
	ctx := context.Background()
	na.Clean()

	acc, err := cli.accSvc.GetByEmail(ctx, na.Email)
	if err != nil {
		if errors.Cause(err) != account.ErrNotFound {
			return err
		}
		_, err = cli.accSvc.Create(ctx, na)
		return err
	}

	acc.IsActive = true
	_, err = cli.accSvc.SetPassword(ctx, acc, na.Password)
	return err
}
