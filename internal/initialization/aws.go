// Package initialization builds the AWS SDK configuration and service
// clients shared by the DynamoDB store, the EventBridge publisher and the
// CloudWatch run reporter.
package initialization

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsCloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
)

// AWSOptions tunes the SDK clients.
type AWSOptions struct {
	Region   string
	Endpoint string

	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// RetryMaxAttempts of 1 disables SDK retries.
	RetryMaxAttempts int
	// MaxConnsPerHost should cover the number of concurrent store calls.
	MaxConnsPerHost int
	HTTPTimeout     time.Duration
}

// LoadAWSConfig resolves region and credentials. Static keys win over a
// profile; with neither the default credential chain is used.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	loadOpts := []func(*awsConfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsConfig.WithRegion(opts.Region))
	}
	switch {
	case opts.AccessKeyID != "":
		loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	case opts.Profile != "":
		loadOpts = append(loadOpts, awsConfig.WithSharedConfigProfile(opts.Profile))
	}
	loadOpts = append(loadOpts, awsConfig.WithHTTPClient(newHTTPClient(opts)))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func newHTTPClient(opts AWSOptions) *http.Client {
	perHost := opts.MaxConnsPerHost
	if perHost <= 0 {
		perHost = 20
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DisableKeepAlives:   false,
			MaxIdleConns:        perHost * 2,
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewDynamoDBClient creates the DynamoDB client. Endpoint points it at
// DynamoDB Local or another compatible service.
func NewDynamoDBClient(cfg aws.Config, opts AWSOptions) *awsDynamodb.Client {
	return awsDynamodb.NewFromConfig(cfg, func(o *awsDynamodb.Options) {
		if opts.RetryMaxAttempts > 0 {
			o.RetryMaxAttempts = opts.RetryMaxAttempts
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
}

// NewEventBridgeClient creates the EventBridge client.
func NewEventBridgeClient(cfg aws.Config) *awsEventbridge.Client {
	return awsEventbridge.NewFromConfig(cfg, func(o *awsEventbridge.Options) {
		o.RetryMaxAttempts = 3
	})
}

// NewCloudWatchClient creates the CloudWatch client.
func NewCloudWatchClient(cfg aws.Config) *awsCloudwatch.Client {
	return awsCloudwatch.NewFromConfig(cfg)
}
