package main

import (
	"log"
	"os"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	emailsvc "github.com/trezcool/sapp/services/email"
	localidp "github.com/trezcool/sapp/services/identity/local"
	logsvc "github.com/trezcool/sapp/services/logger"
	"github.com/trezcool/sapp/storage/database"
	sqlxrepos "github.com/trezcool/sapp/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	defer logger.Close()

	if conf.IsFirebase() {
		logger.Fatal("the admin CLI only manages standalone deployments")
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	accounts := sqlxrepos.NewAccountRepository(db)
	profiles := sqlxrepos.NewProfileRepository(db)
	idp := localidp.NewProvider(accounts, localidp.Options{SecretKey: conf.SecretKey, Issuer: conf.AppName})

	// start CLI
	cli := commandLine{
		db:       db,
		accounts: accounts,
		idp:      idp,
		adminSvc: admin.NewService(
			profiles, sqlxrepos.NewStudentRepository(db), sqlxrepos.NewSchoolRepository(db), idp, emailsvc.NewService(conf, logger), logger, nil,
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		logger.Close()
		os.Exit(1)
	}
}
