package core

import (
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

// Deployment modes
const (
	ModeStandalone = "standalone" // self-hosted identity provider + PostgreSQL
	ModeFirebase   = "firebase"   // Firebase Auth + Firestore, callables only
)

type (
	serverConfig struct {
		Addr            string
		Host            string
		ShutdownTimeout time.Duration
		RequestTimeout  time.Duration
	}

	authConfig struct {
		TokenTTL          time.Duration
		RefreshTTL        time.Duration
		SelfHeal          bool
		PromoteFirstAdmin bool
	}

	databaseConfig struct {
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

	redisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	firebaseConfig struct {
		ProjectID       string
		CredentialsFile string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Mode             string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		defaultFromEmail string

		Server   serverConfig
		Auth     authConfig
		Database databaseConfig
		Redis    redisConfig
		Firebase firebaseConfig
	}
)

func (c databaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (c *Config) IsFirebase() bool { return c.Mode == ModeFirebase }

// NewConfig loads the configuration from defaults, ./config/.env.<env> (if present) and the environment.
// Environment variables are prefixed with the value of ENV: DEV (local; default), TEST, QA, PROD.
// e.g. DEV_DATABASE_HOST, PROD_SECRETKEY
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Sapp")
	v.SetDefault("build", "develop")
	v.SetDefault("mode", ModeStandalone)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "x8$!m2@qz0+o6w(k4t#1e_rj5^9y=a3hfs7lcb%d-n&vgu)p")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Sapp <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.requestTimeout", 15*time.Second)

	v.SetDefault("auth.tokenTTL", 1*time.Hour)
	v.SetDefault("auth.refreshTTL", 7*24*time.Hour)
	v.SetDefault("auth.selfHeal", true)
	v.SetDefault("auth.promoteFirstAdmin", true)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "sapp")
	v.SetDefault("database.user", "sapp")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("firebase.projectID", "")
	v.SetDefault("firebase.credentialsFile", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
		// an orphaned account must not come back on its own
		v.SetDefault("auth.selfHeal", false)
		v.SetDefault("auth.promoteFirstAdmin", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Mode:             v.GetString("mode"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: serverConfig{
			Addr:            v.GetString("server.addr"),
			Host:            v.GetString("server.host"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			RequestTimeout:  v.GetDuration("server.requestTimeout"),
		},
		Auth: authConfig{
			TokenTTL:          v.GetDuration("auth.tokenTTL"),
			RefreshTTL:        v.GetDuration("auth.refreshTTL"),
			SelfHeal:          v.GetBool("auth.selfHeal"),
			PromoteFirstAdmin: v.GetBool("auth.promoteFirstAdmin"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: redisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Firebase: firebaseConfig{
			ProjectID:       v.GetString("firebase.projectID"),
			CredentialsFile: v.GetString("firebase.credentialsFile"),
		},
	}
}
