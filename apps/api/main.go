package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	echoapi "github.com/trezcool/sapp/apps/api/echo"
	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
	emailsvc "github.com/trezcool/sapp/services/email"
	firebaseidp "github.com/trezcool/sapp/services/identity/firebase"
	localidp "github.com/trezcool/sapp/services/identity/local"
	logsvc "github.com/trezcool/sapp/services/logger"
	metricsvc "github.com/trezcool/sapp/services/metrics"
	"github.com/trezcool/sapp/storage/database"
	sqlxrepos "github.com/trezcool/sapp/storage/database/sqlx"
	firestorerepos "github.com/trezcool/sapp/storage/firestore"
)

// backend is what a deployment mode provides to the API.
type backend struct {
	profiles user.Repository
	students user.StudentRepository
	schools  user.SchoolRepository
	accounts identity.Admin
	verifier identity.Verifier
	idp      *localidp.Provider // standalone only
	close    func()
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	ctx := context.Background()

	var (
		be  backend
		err error
	)
	if conf.IsFirebase() {
		be, err = setUpFirebase(ctx, conf)
	} else {
		be, err = setUpStandalone(ctx, conf, logger)
	}
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s backend: %v", conf.Mode, err), err)
	}
	defer be.close()

	// set up services
	rec := metricsvc.NewRecorder("sapp")
	mailSvc := emailsvc.NewService(conf, logger)
	usrSvc := user.NewService(be.profiles, be.students, be.schools)
	adminSvc := admin.NewService(be.profiles, be.students, be.schools, be.accounts, mailSvc, logger, rec)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, mode %q", conf.Build, conf.Mode))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.Deps{
		Conf:     conf,
		Logger:   logger,
		Profiles: be.profiles,
		UserSvc:  usrSvc,
		AdminSvc: adminSvc,
		Verifier: be.verifier,
		IdP:      be.idp,
		Metrics:  rec,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpStandalone(ctx context.Context, conf *core.Config, logger core.Logger) (backend, error) {
	db, err := setUpDB(ctx, conf)
	if err != nil {
		return backend{}, err
	}

	revocations := localidp.NewMemoryRevocationStore()
	var rdb *redis.Client
	if conf.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			return backend{}, errors.Wrap(err, "pinging redis")
		}
		revocations = localidp.NewRedisRevocationStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR is not set: revoked tokens are only tracked by this process")
	}

	idp := localidp.NewProvider(sqlxrepos.NewAccountRepository(db), localidp.Options{
		SecretKey:   conf.SecretKey,
		Issuer:      conf.AppName,
		TokenTTL:    conf.Auth.TokenTTL,
		RefreshTTL:  conf.Auth.RefreshTTL,
		Revocations: revocations,
	})

	return backend{
		profiles: sqlxrepos.NewProfileRepository(db),
		students: sqlxrepos.NewStudentRepository(db),
		schools:  sqlxrepos.NewSchoolRepository(db),
		accounts: idp,
		verifier: idp,
		idp:      idp,
		close: func() {
			if rdb != nil {
				_ = rdb.Close()
			}
			if err := db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		},
	}, nil
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func setUpFirebase(ctx context.Context, conf *core.Config) (backend, error) {
	var opts []option.ClientOption
	if conf.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: conf.Firebase.ProjectID}, opts...)
	if err != nil {
		return backend{}, errors.Wrap(err, "initializing firebase app")
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return backend{}, errors.Wrap(err, "initializing firebase auth")
	}
	var fs *firestore.Client
	if fs, err = app.Firestore(ctx); err != nil {
		return backend{}, errors.Wrap(err, "initializing firestore")
	}

	idp := firebaseidp.NewProvider(authClient)
	return backend{
		profiles: firestorerepos.NewProfileRepository(fs),
		students: firestorerepos.NewStudentRepository(fs),
		schools:  firestorerepos.NewSchoolRepository(fs),
		accounts: idp,
		verifier: idp,
		close:    func() { _ = fs.Close() },
	}, nil
}
