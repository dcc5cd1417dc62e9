package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	emailsvc "github.com/aurraa/classroom/services/email"
	logsvc "github.com/aurraa/classroom/services/logger"
	"github.com/aurraa/classroom/storage/database"
	sqlxrepos "github.com/aurraa/classroom/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.OpenX(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate, translator := core.NewValidator()
	repo := sqlxrepos.NewAccountRepository(db)

	// start CLI
	cli := commandLine{
		db:     db.DB,
		accSvc: account.NewService(repo, emailsvc.NewConsoleService(conf, logger), conf, validate, translator),
		repo:   repo,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
