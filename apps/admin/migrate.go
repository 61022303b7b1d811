package main

import (
	"github.com/pressly/goose/v3"

	"github.com/trezcool/sapp/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	return database.RunMigrations(gooseRunFunc, cli.db, args[0], args[1:]...)
}
