package main

import (
	"context"
	"fmt"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/user"
)

var errPasswordTooShort = fmt.Errorf("password must contain at least %d characters", user.MinPasswordLength)

func (cli *commandLine) resetPassword(email, pwd string) error {
	if !user.ValidPassword(pwd) {
		return errPasswordTooShort
	}
	ctx := context.Background()
	acc, err := cli.accounts.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	return cli.idp.SetPassword(ctx, acc.UID, pwd)
}
