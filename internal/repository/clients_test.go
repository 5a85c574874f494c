package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

func TestOpenPostgres_BadDSN(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OpenPostgres(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	if err == nil {
		t.Fatal("expected an error for an unreachable database")
	}
	if !strings.Contains(err.Error(), "PostgreSQL") && !strings.Contains(err.Error(), "DB connection") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestIAMConnector_TokenPerConnection(t *testing.T) {
	var tokens int
	ic := &iamConnector{
		endpoint: "127.0.0.1:1",
		user:     "app",
		dbName:   "cycle",
		token: func(ctx context.Context) (string, error) {
			tokens++
			return fmt.Sprintf("token-%d", tokens), nil
		},
	}
	db := sql.OpenDB(ic)
	defer db.Close()

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			t.Fatal("expected the unreachable endpoint to fail")
		}
	}
	if tokens < 2 {
		t.Fatalf("expected a fresh token for every connection attempt, built %d", tokens)
	}
}

func TestIAMConnector_Token(t *testing.T) {
	cfg := &Config{Region: "eu-central-1", DBEndpoint: "db.example.internal", DBPort: 5432, DBUser: "app", DBName: "cycle"}
	creds := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
	})
	ic := cfg.iamConnector(creds)

	token, err := ic.token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(token, "db.example.internal:5432/") || !strings.Contains(token, "Action=connect") {
		t.Fatalf("unexpected token %q", token)
	}
	dsn := ic.dsn(token)
	if !strings.HasPrefix(dsn, "postgres://app:") || !strings.HasSuffix(dsn, "@db.example.internal:5432/cycle?sslmode=require") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

type fakeRDS struct {
	out *rds.DescribeDBInstancesOutput
	err error
	ids []string
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	f.ids = append(f.ids, aws.ToString(params.DBInstanceIdentifier))
	return f.out, f.err
}

func TestResolveDBEndpoint(t *testing.T) {
	api := &fakeRDS{out: &rds.DescribeDBInstancesOutput{
		DBInstances: []rdstypes.DBInstance{{
			Endpoint: &rdstypes.Endpoint{Address: aws.String("cycle-db.abc.eu-central-1.rds.amazonaws.com"), Port: aws.Int32(6543)},
		}},
	}}
	cfg := &Config{DBInstanceID: "cycle-db", DBPort: 5432}

	if err := cfg.ResolveDBEndpoint(context.Background(), api); err != nil {
		t.Fatal(err)
	}
	if cfg.DBEndpoint != "cycle-db.abc.eu-central-1.rds.amazonaws.com" || cfg.DBPort != 6543 {
		t.Fatalf("unexpected endpoint %s:%d", cfg.DBEndpoint, cfg.DBPort)
	}
	if len(api.ids) != 1 || api.ids[0] != "cycle-db" {
		t.Fatalf("unexpected lookups %v", api.ids)
	}
}

func TestResolveDBEndpoint_Errors(t *testing.T) {
	if err := (&Config{}).ResolveDBEndpoint(context.Background(), &fakeRDS{}); err == nil {
		t.Fatal("expected an error without an instance id")
	}

	pending := &fakeRDS{out: &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{{}}}}
	if err := (&Config{DBInstanceID: "new-db"}).ResolveDBEndpoint(context.Background(), pending); err == nil {
		t.Fatal("expected an error for an instance without an endpoint")
	}

	boom := errors.New("access denied")
	if err := (&Config{DBInstanceID: "cycle-db"}).ResolveDBEndpoint(context.Background(), &fakeRDS{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected the API error, got %v", err)
	}
}
