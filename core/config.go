package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Identity providers
const (
	IdentityNone      = "none" // adapter-absent mode: local profiles only
	IdentityDirectory = "directory"
	IdentityFirebase  = "firebase"
)

// Key-value store drivers
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Identity IdentityConfig
		Store    StoreConfig
		Database DatabaseConfig
		Mail     MailConfig
		Pages    PagesConfig
	}

	ServerConfig struct {
		Host               string
		Addr               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		DisableReqLogs     bool
		JWTExpirationDelta time.Duration
	}

	IdentityConfig struct {
		Provider          string
		FirebaseAPIKey    string
		FirebaseProjectID string
		AuthEndpoint      string // identitytoolkit base URL
		FirestoreEndpoint string
	}

	StoreConfig struct {
		Driver        string
		Path          string // sqlite file
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MailConfig struct {
		DefaultFromEmail string
		SendgridAPIKey   string
		FrontendBaseURL  string
	}

	// PagesConfig holds the navigation targets of both portals.
	// Values are opaque page identifiers resolved by the dashboard.
	PagesConfig struct {
		StudentLogin   string
		StudentSignup  string
		StudentLanding string
		TeacherLogin   string
		TeacherSignup  string
		TeacherLanding string
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func (mc MailConfig) DefaultFrom() mail.Address {
	addr, err := mail.ParseAddress(mc.DefaultFromEmail)
	if err != nil {
		return mail.Address{Address: mc.DefaultFromEmail}
	}
	return *addr
}

// NewConfig loads the configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the upper-cased env name, eg. `DEV_SECRETKEY`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Addr:               v.GetString("server.addr"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Identity: IdentityConfig{
			Provider:          strings.ToLower(v.GetString("identity.provider")),
			FirebaseAPIKey:    v.GetString("identity.firebaseApiKey"),
			FirebaseProjectID: v.GetString("identity.firebaseProjectId"),
			AuthEndpoint:      v.GetString("identity.authEndpoint"),
			FirestoreEndpoint: v.GetString("identity.firestoreEndpoint"),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(v.GetString("store.driver")),
			Path:          v.GetString("store.path"),
			RedisAddr:     v.GetString("store.redisAddr"),
			RedisPassword: v.GetString("store.redisPassword"),
			RedisDB:       v.GetInt("store.redisDb"),
			RedisPrefix:   v.GetString("store.redisPrefix"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTls"),
		},
		Mail: MailConfig{
			DefaultFromEmail: v.GetString("mail.defaultFromEmail"),
			SendgridAPIKey:   v.GetString("mail.sendgridApiKey"),
			FrontendBaseURL:  v.GetString("mail.frontendBaseUrl"),
		},
		Pages: PagesConfig{
			StudentLogin:   v.GetString("pages.studentLogin"),
			StudentSignup:  v.GetString("pages.studentSignup"),
			StudentLanding: v.GetString("pages.studentLanding"),
			TeacherLogin:   v.GetString("pages.teacherLogin"),
			TeacherSignup:  v.GetString("pages.teacherSignup"),
			TeacherLanding: v.GetString("pages.teacherLanding"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Aurraa")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("identity.provider", IdentityNone)
	v.SetDefault("identity.firebaseApiKey", "")
	v.SetDefault("identity.firebaseProjectId", "")
	v.SetDefault("identity.authEndpoint", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("identity.firestoreEndpoint", "https://firestore.googleapis.com/v1")

	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.path", "local-storage.db")
	v.SetDefault("store.redisAddr", "localhost:6379")
	v.SetDefault("store.redisPassword", "")
	v.SetDefault("store.redisDb", 0)
	v.SetDefault("store.redisPrefix", "aurraa:")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "aurraa")
	v.SetDefault("database.user", "aurraa")
	v.SetDefault("database.password", "aurraa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTls", true)

	v.SetDefault("mail.defaultFromEmail", "Aurraa <noreply@localhost>")
	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.frontendBaseUrl", "http://localhost:8000")

	v.SetDefault("pages.studentLogin", "login.html")
	v.SetDefault("pages.studentSignup", "signup.html")
	v.SetDefault("pages.studentLanding", "ncret-grade.html")
	v.SetDefault("pages.teacherLogin", "teacher-login.html")
	v.SetDefault("pages.teacherSignup", "teacher-signup.html")
	v.SetDefault("pages.teacherLanding", "teacher-dashboard-responsive.html")
}

func (c *Config) String() string {
	return fmt.Sprintf("env=%s build=%s identity=%s store=%s", c.Env, c.Build, c.Identity.Provider, c.Store.Driver)
}
