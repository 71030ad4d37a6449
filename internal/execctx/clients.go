//go:build !qjsengine

package execctx

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlClient is one named SQL connection pool binding (spec §3: "SQL
// connection pools" among the Execution Context's named service clients).
// Backed by gorm.io/gorm + github.com/glebarez/sqlite — the teacher's own
// storage stack (cryguy-worker's D1Store/KVStore collaborators assume a
// SQL-shaped store beneath them) — rather than a raw database/sql handle,
// so bindings get the teacher's query-building and connection-pool
// conventions for free.
type sqlClient struct {
	name string
	db   *gorm.DB
}

// pushClient is one named push-notification binding (named "apns" after
// original_source/src/ctx.rs, which keeps one rustls ClientConfig per
// binding). No push-notification library appears anywhere in the example
// pack, so this is built on crypto/tls + net/http (HTTP/2 APNs provider
// API) — see DESIGN.md for the stdlib justification.
type pushClient struct {
	name   string
	client *http.Client
}

// initClients opens every SQL and push binding named in ec.metadata. Failure
// to open any one binding aborts Init entirely — partially wired clients are
// not a state the Execution Context can usefully run in.
func (ec *ExecutionContext) initClients() error {
	ec.sql = make(map[string]*sqlClient, len(ec.metadata.SQL))
	for _, b := range ec.metadata.SQL {
		db, err := gorm.Open(sqlite.Open(b.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("execctx: app %s opening sql binding %q: %w", ec.key.String(), b.Name, err)
		}
		ec.sql[b.Name] = &sqlClient{name: b.Name, db: db}
	}

	ec.push = make(map[string]*pushClient, len(ec.metadata.Push))
	for _, b := range ec.metadata.Push {
		tlsCfg, err := pushTLSConfig(b.CertPEM)
		if err != nil {
			return fmt.Errorf("execctx: app %s configuring push binding %q: %w", ec.key.String(), b.Name, err)
		}
		ec.push[b.Name] = &pushClient{
			name: b.Name,
			client: &http.Client{
				Timeout:   10 * time.Second,
				Transport: &http.Transport{TLSClientConfig: tlsCfg, ForceAttemptHTTP2: true},
			},
		}
	}
	return nil
}

// pushTLSConfig builds the TLS config for a push binding's transport: the
// certificates in certPEM become the root CA pool the transport trusts. No
// client certificate is presented, and the binding's Sandbox flag is not
// read here or anywhere else in the Execution Context.
func pushTLSConfig(certPEM []byte) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certPEM) {
		return nil, fmt.Errorf("execctx: invalid push certificate PEM")
	}
	return &tls.Config{RootCAs: pool}, nil
}

// SQL returns the named SQL client binding, or nil if undefined.
func (ec *ExecutionContext) SQL(name string) *gorm.DB {
	if c, ok := ec.sql[name]; ok {
		return c.db
	}
	return nil
}

// Push returns the named push client binding, or nil if undefined.
func (ec *ExecutionContext) Push(name string) *http.Client {
	if c, ok := ec.push[name]; ok {
		return c.client
	}
	return nil
}

// closeClients releases every owned SQL connection pool. Push clients own no
// resources beyond their *http.Transport, which is left to GC.
func (ec *ExecutionContext) closeClients() {
	for _, c := range ec.sql {
		if sqlDB, err := c.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
