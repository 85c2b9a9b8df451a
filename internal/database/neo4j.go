package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/store"
)

// Neo4jClient is a thin wrapper over the driver bound to one database.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// Config is the neo4j section of the service configuration.
type Config struct {
	URI            string        `koanf:"uri"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	Database       string        `koanf:"database"` // typically "neo4j" for AuraDB
	MaxPoolSize    int           `koanf:"max_pool_size" validate:"gte=0"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// NewNeo4jClient opens a driver and verifies connectivity before returning.
func NewNeo4jClient(ctx context.Context, config Config, log *logger.Logger) (*Neo4jClient, error) {
	if log == nil {
		log = logger.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(
		config.URI,
		neo4j.BasicAuth(config.Username, config.Password, ""),
		func(c *neo4jconfig.Config) {
			if config.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = config.MaxPoolSize
			}
			if config.ConnectTimeout > 0 {
				c.SocketConnectTimeout = config.ConnectTimeout
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(verifyCtx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	log.Info("connected to Neo4j", "uri", config.URI, "database", config.Database)
	return &Neo4jClient{
		driver:   driver,
		database: config.Database,
		log:      log,
	}, nil
}

// Close releases the driver and its pool.
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// ExecuteWrite runs a write query on the leader.
func (c *Neo4jClient) ExecuteWrite(ctx context.Context, query string, params map[string]interface{}) error {
	_, err := c.run(ctx, query, params, neo4j.ExecuteQueryWithWritersRouting())
	return err
}

// ExecuteRead runs a read query on a follower and returns each record as a map
// keyed by the RETURN aliases.
func (c *Neo4jClient) ExecuteRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	result, err := c.run(ctx, query, params, neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, len(result.Records))
	for i, record := range result.Records {
		rows[i] = record.AsMap()
	}
	return rows, nil
}

func (c *Neo4jClient) run(ctx context.Context, query string, params map[string]interface{}, routing neo4j.ExecuteQueryConfigurationOption) (*neo4j.EagerResult, error) {
	start := time.Now()
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		routing,
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	c.log.Debug("neo4j query", "records", len(result.Records), "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// Health runs a trivial read.
func (c *Neo4jClient) Health(ctx context.Context) error {
	_, err := c.ExecuteRead(ctx, "RETURN 1", nil)
	return mapNeo4jError("health", err)
}

// ExecuteWriteTransaction runs work in a single managed write transaction
func (c *Neo4jClient) ExecuteWriteTransaction(ctx context.Context, work func(neo4j.ManagedTransaction) error) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return nil, work(tx)
	})
	if err != nil {
		return fmt.Errorf("neo4j write transaction: %w", err)
	}

	return nil
}

// mapNeo4jError translates driver errors into the store error taxonomy.
func mapNeo4jError(op string, err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security.") {
		return fmt.Errorf("%s: %w: %w", op, store.ErrAccessDenied, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return store.Unavailable(op, err)
}
