package main

import (
	"github.com/aurraa/classroom/storage/database"
)

func (cli *commandLine) migrate(args []string) error {
	return database.Migrate(cli.db, args[0], args[1:]...)
}
