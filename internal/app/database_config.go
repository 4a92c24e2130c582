package app

import (
	"strings"

	"github.com/learnhub/learnhub/internal/database"
)

// ConnectionConfig converts DatabaseConfig into the parameters accepted by database.Open.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.Pool.MaxOpenConns,
		MaxIdleConns:    c.Pool.MaxIdleConns,
		ConnMaxLifetime: c.Pool.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		host = c.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		host = c.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(host.Host)
	dbCfg.Port = host.Port
	dbCfg.Name = strings.TrimSpace(host.Database)
	dbCfg.User = strings.TrimSpace(host.Username)
	dbCfg.Password = host.Password
	return dbCfg
}
