package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof" // debug endpoints
	"os"

	echoapi "github.com/aurraa/classroom/apps/api/echo"
	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
	"github.com/aurraa/classroom/core/session"
	emailsvc "github.com/aurraa/classroom/services/email"
	"github.com/aurraa/classroom/services/identity/directory"
	"github.com/aurraa/classroom/services/identity/firebase"
	logsvc "github.com/aurraa/classroom/services/logger"
	"github.com/aurraa/classroom/storage/database"
	sqlxrepos "github.com/aurraa/classroom/storage/database/sqlx"
	inmemkv "github.com/aurraa/classroom/storage/kv/inmem"
	rediskv "github.com/aurraa/classroom/storage/kv/redis"
	sqlitekv "github.com/aurraa/classroom/storage/kv/sqlite"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	storeLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	storeLogger.Enable(!conf.Debug)

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	// set up the local profile store
	kv, closeKV, err := setUpKeyValueStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up key-value store: %v", err), err)
	}
	defer func() {
		if err = closeKV.Close(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()
	profiles := profile.NewStore(kv, storeLogger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate, translator := core.NewValidator()

	var (
		adapter identity.Adapter // stays nil when no identity service is configured
		dir     *directory.Adapter
	)
	switch conf.Identity.Provider {
	case core.IdentityNone, "":
		logger.Info("No identity service configured: profiles are kept locally")
	case core.IdentityDirectory:
		if err = database.CreateIfNotExist(conf); err != nil {
			logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
		}
		db, err := database.OpenX(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		if err = database.Migrate(db.DB, "up"); err != nil {
			logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
		}
		accSvc := account.NewService(sqlxrepos.NewAccountRepository(db), mailSvc, conf, validate, translator)
		dir = directory.New(accSvc, conf)
		adapter = dir
	case core.IdentityFirebase:
		fb, err := firebase.New(conf.Identity, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up firebase: %v", err), err)
		}
		adapter = fb
	default:
		logger.Fatal(fmt.Sprintf("unknown identity provider %q", conf.Identity.Provider))
	}

	reconciler := session.NewReconciler(profiles, adapter, logger, validate, translator)
	for _, role := range profile.Roles {
		role := role
		unsubscribe := reconciler.Subscribe(role, func(usr *identity.User) {
			if usr == nil {
				logger.Debug(fmt.Sprintf("%s portal: signed out", role))
				return
			}
			logger.Debug(fmt.Sprintf("%s portal: signed in as %s", role, core.Mask(usr.Email)))
		})
		defer unsubscribe()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("identity").Set(conf.Identity.Provider)
	expvar.NewString("store").Set(conf.Store.Driver)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Reconciler: reconciler,
			Gate:       session.NewGate(profiles, conf.Pages),
			Directory:  dir,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setUpKeyValueStore opens the backend selected by conf.Store.Driver.
func setUpKeyValueStore(conf *core.Config) (core.KeyValueStore, io.Closer, error) {
	ctx := context.Background()
	switch conf.Store.Driver {
	case core.StoreMemory:
		return inmemkv.NewStore(), nopCloser{}, nil
	case core.StoreSQLite, "":
		store, err := sqlitekv.Open(ctx, conf.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case core.StoreRedis:
		client, err := rediskv.Dial(ctx, conf.Store.RedisAddr, conf.Store.RedisPassword, conf.Store.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rediskv.NewStore(client, conf.Store.RedisPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", conf.Store.Driver)
	}
}
