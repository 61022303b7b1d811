package main

import (
	"context"
	"fmt"
)

// createAdmin bootstraps the system admin; it fails once an admin exists.
func (cli *commandLine) createAdmin(email, name, pwd string) error {
	p, err := cli.adminSvc.CreateSystemAdmin(context.Background(), email, name, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("admin %s created (uid %s)\n", p.Email, p.UID)
	return nil
}
