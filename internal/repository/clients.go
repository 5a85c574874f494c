package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	rdsutils "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lib/pq"
)

type Config struct {
	Profile      string // Primarily for dev purposes
	S3BucketName string
	S3Prefix     string // Key prefix for period entries, e.g. "cycle-book"
	Region       string

	DatabaseURL string // Plain DSN; takes precedence over IAM auth when set

	DBEndpoint   string // e.g. erikkn-test.abc123xyz.eu-central-1.rds.amazonaws.com
	DBInstanceID string // Looked up with DescribeDBInstances when DBEndpoint is empty
	DBUser     string // e.g. "masteruser" or some IAM-enabled user
	DBName     string // e.g. "postgres" or your DB name
	DBPort     int    // e.g. 5432
}

type S3Client struct {
	Client     *s3.Client // The actual S3 client
	BucketName string     // The bucket name (from config)
}

// RDSClient encapsulates the PostgreSQL RDS client (sql.DB) with IAM authentication
type RDSClient struct {
	Client *sql.DB // The actual PostgreSQL database client
}

func (c *Config) LoadAWSConfig(ctx context.Context) (*aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &cfg, nil
}

// NewS3Client creates a new S3 client and stores the bucket name
func NewS3Client(ctx context.Context, cfg *Config) (*S3Client, error) {
	awsCfg, err := cfg.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for S3 client: %w", err)
	}

	client := s3.NewFromConfig(*awsCfg)
	return &S3Client{
		Client:     client,
		BucketName: cfg.S3BucketName,
	}, nil
}

// NewRDSClient returns a PostgreSQL client. DatabaseURL is used as-is when set.
// Otherwise each new pool connection authenticates to DBEndpoint (resolved from
// DBInstanceID if empty) with its own IAM auth token; tokens expire after 15 minutes.
func (c *Config) NewRDSClient(ctx context.Context) (*RDSClient, error) {
	if c.DatabaseURL != "" {
		db, err := OpenPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &RDSClient{Client: db}, nil
	}

	awsCfg, err := c.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for RDS: %w", err)
	}

	if c.DBEndpoint == "" {
		if err := c.ResolveDBEndpoint(ctx, rds.NewFromConfig(*awsCfg)); err != nil {
			return nil, err
		}
	}

	db, err := pingDB(ctx, sql.OpenDB(c.iamConnector(awsCfg.Credentials)))
	if err != nil {
		return nil, err
	}
	return &RDSClient{Client: db}, nil
}

// RDSDescriber is the part of the RDS API used to look up an instance endpoint.
type RDSDescriber interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// ResolveDBEndpoint sets DBEndpoint and DBPort from the RDS instance DBInstanceID.
func (c *Config) ResolveDBEndpoint(ctx context.Context, api RDSDescriber) error {
	if c.DBInstanceID == "" {
		return fmt.Errorf("no RDS endpoint or instance identifier configured")
	}
	out, err := api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(c.DBInstanceID),
	})
	if err != nil {
		return fmt.Errorf("failed to describe RDS instance %s: %w", c.DBInstanceID, err)
	}
	if len(out.DBInstances) == 0 || out.DBInstances[0].Endpoint == nil {
		return fmt.Errorf("RDS instance %s has no endpoint yet", c.DBInstanceID)
	}

	ep := out.DBInstances[0].Endpoint
	c.DBEndpoint = aws.ToString(ep.Address)
	if port := aws.ToInt32(ep.Port); port > 0 {
		c.DBPort = int(port)
	}
	return nil
}

// iamConnector dials RDS with a new auth token per connection.
type iamConnector struct {
	endpoint string // host:port
	user     string
	dbName   string
	token    func(ctx context.Context) (string, error)
}

func (c *Config) iamConnector(creds aws.CredentialsProvider) *iamConnector {
	endpointWithPort := fmt.Sprintf("%s:%d", c.DBEndpoint, c.DBPort)
	return &iamConnector{
		endpoint: endpointWithPort,
		user:     c.DBUser,
		dbName:   c.DBName,
		token: func(ctx context.Context) (string, error) {
			// This operation is performed locally, not an API call
			return rdsutils.BuildAuthToken(ctx, endpointWithPort, c.Region, c.DBUser, creds)
		},
	}
}

func (ic *iamConnector) dsn(token string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=require",
		url.QueryEscape(ic.user),
		url.QueryEscape(token),
		ic.endpoint,
		url.QueryEscape(ic.dbName),
	)
}

func (ic *iamConnector) Connect(ctx context.Context) (driver.Conn, error) {
	token, err := ic.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication token: %w", err)
	}
	connector, err := pq.NewConnector(ic.dsn(token))
	if err != nil {
		return nil, fmt.Errorf("failed to build RDS connector: %w", err)
	}
	return connector.Connect(ctx)
}

func (ic *iamConnector) Driver() driver.Driver {
	return &pq.Driver{}
}

// OpenPostgres opens a lib/pq connection and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	return pingDB(ctx, db)
}

func pingDB(ctx context.Context, db *sql.DB) (*sql.DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}
