package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"docflow/apps/ingestion/internal/config"
)

const (
	MinioAccessKey = "minioadmin"
	MinioSecretKey = "minioadmin"
)

type IntegrationSuite struct {
	T   *testing.T
	DB  *sql.DB
	NSQ *nsq.Producer

	// NSQDAddr is the TCP address of the nsqd container, for consumers.
	NSQDAddr string
	// S3Endpoint is the base URL of the MinIO container.
	S3Endpoint string

	withNSQ   bool
	withMinio bool

	// Containers
	pgContainer    *postgres.PostgresContainer
	nsqContainer   testcontainers.Container
	minioContainer testcontainers.Container

	dbHost string
	dbPort int
}

type Option func(*IntegrationSuite)

// WithNSQ also starts nsqd.
func WithNSQ() Option { return func(s *IntegrationSuite) { s.withNSQ = true } }

// WithMinio also starts an S3-compatible object store.
func WithMinio() Option { return func(s *IntegrationSuite) { s.withMinio = true } }

func NewIntegrationSuite(t *testing.T, opts ...Option) *IntegrationSuite {
	s := &IntegrationSuite{T: t}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	// 1. Postgres
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("docflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	s.dbHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.dbPort = pgPort.Int()

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	if s.withNSQ {
		s.startNSQ(ctx)
	}
	if s.withMinio {
		s.startMinio(ctx)
	}
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	nsqPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)

	s.NSQDAddr = fmt.Sprintf("%s:%s", nsqHost, nsqPort.Port())
	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startMinio(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     MinioAccessKey,
			"MINIO_ROOT_PASSWORD": MinioSecretKey,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.minioContainer = c

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(s.T, err)
	s.S3Endpoint = fmt.Sprintf("http://%s:%s", host, port.Port())
}

// CreateBucket creates bucket in the MinIO container.
func (s *IntegrationSuite) CreateBucket(bucket string) {
	require.NotEmpty(s.T, s.S3Endpoint, "suite started without WithMinio")
	client := awss3.New(awss3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(s.S3Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(MinioAccessKey, MinioSecretKey, ""),
	})
	_, err := client.CreateBucket(context.Background(), &awss3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(s.T, err)
}

// MigrationPath is the file:// URL of the repository migrations.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))
}

// GetAppConfig returns a config pointing at the suite's containers, with
// short timeouts suitable for tests.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	cfg := &config.Config{
		DBHost: s.dbHost,
		DBPort: s.dbPort,
		DBUser: "test",
		DBPass: "test",
		DBName: "docflow_test",

		NSQDHost:       s.NSQDAddr,
		NSQChannel:     "ingestion-worker",
		NSQMaxInFlight: 4,
		NSQMsgTimeout:  30 * time.Second,

		WorkerConcurrency: 2,
		MaxAttempts:       3,
		JobTimeout:        time.Minute,
		RequeueDelay:      100 * time.Millisecond,
		MaxRequeueDelay:   time.Second,
		MaxBackoff:        time.Second,

		MaxFileSizeMB:         10,
		MaxDecompressedSizeMB: 50,
		ExtractionTimeout:     30 * time.Second,
		MaxArchiveDepth:       3,

		S3Region:         "us-east-1",
		S3Endpoint:       s.S3Endpoint,
		S3AccessKey:      MinioAccessKey,
		S3SecretKey:      MinioSecretKey,
		S3ForcePathStyle: true,
		ChunksKeyPrefix:  "chunks",

		EmbedderTimeout: 10 * time.Second,

		EnableFailureStore: true,
		MigrationPath:      MigrationPath(),

		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
	return cfg
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
	if s.minioContainer != nil {
		s.minioContainer.Terminate(ctx)
	}
}
