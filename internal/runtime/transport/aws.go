package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"
)

var (
	AWSDefaultConfigLoader  = awsconfig.LoadDefaultConfig
	SNSTopicResolverFactory = sns.NewGenerateArnTopicResolver
	SNSPublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12

	// awsSubscriberName suffixes the SQS queue created for each SNS topic.
	awsSubscriberName = "dispatchflow"
)

func awsTransport(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	cfg, err := loadAWSConfig(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}
	logger.Info("Loaded AWS config", watermill.LogFields{
		"region":          awsRegionOf(cfg),
		"custom_endpoint": hasCustomEndpoint(cfg),
	})

	publisher, err := newSNSPublisher(conf, logger, cfg)
	if err != nil {
		return Transport{}, err
	}
	subscriber, err := newSNSSubscriber(conf, logger, cfg)
	if err != nil {
		return Transport{}, err
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func loadAWSConfig(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	region := ""

	if conf != nil {
		region = conf.GetAWSRegion()
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if key, secret := conf.GetAWSAccessKeyID(), conf.GetAWSSecretAccessKey(); key != "" && secret != "" {
			logger.Info("Using static AWS credentials", nil)
			opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(key, secret)))
		}
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS config", err, watermill.LogFields{"requested_region": region})
		return nil, err
	}
	// The loader may ignore options (stubs in tests); the configured region wins.
	if region != "" {
		cfg.Region = region
	}
	return &cfg, nil
}

func newSNSPublisher(conf Config, logger watermill.LoggerAdapter, cfg *aws.Config) (message.Publisher, error) {
	accountID, region := resolveAccountAndRegion(conf, logger, awsRegionOf(cfg))
	logger.Info("Creating SNS publisher", watermill.LogFields{"account_id": accountID, "region": region})

	resolver, err := newTopicResolver(accountID, region, logger)
	if err != nil {
		return nil, err
	}

	endpoint, err := awsEndpointURL(conf)
	if err != nil {
		logger.Error("Invalid AWS endpoint", err, nil)
		return nil, err
	}

	publisherConfig := sns.PublisherConfig{
		TopicResolver: resolver,
		AWSConfig:     *cfg,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}
	if endpoint != nil {
		base := endpoint.String()
		publisherConfig.OptFns = []func(*amazonsns.Options){
			func(o *amazonsns.Options) { o.BaseEndpoint = aws.String(base) },
		}
	}
	return SNSPublisherFactory(publisherConfig, logger)
}

func newSNSSubscriber(conf Config, logger watermill.LoggerAdapter, cfg *aws.Config) (message.Subscriber, error) {
	accountID, region := resolveAccountAndRegion(conf, logger, awsRegionOf(cfg))
	resolver, err := newTopicResolver(accountID, region, logger)
	if err != nil {
		return nil, err
	}

	snsOpts, sqsOpts, err := endpointOverrides(conf, cfg)
	if err != nil {
		return nil, err
	}

	return SNSSubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            aws.Config{Credentials: aws.AnonymousCredentials{}},
			OptFns:               snsOpts,
			TopicResolver:        resolver,
			GenerateSqsQueueName: sqsQueueNameFor(awsSubscriberName),
		},
		sqs.SubscriberConfig{
			AWSConfig: *cfg,
			OptFns:    sqsOpts,
		},
		logger,
	)
}

// sqsQueueNameFor names the queue "<topic>-<subscriber>".
func sqsQueueNameFor(subscriber string) func(context.Context, sns.TopicArn) (string, error) {
	return func(_ context.Context, arn sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(arn)
		if err != nil {
			return "", err
		}
		return string(topic) + "-" + subscriber, nil
	}
}

func endpointOverrides(conf Config, cfg *aws.Config) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	if !hasCustomEndpoint(cfg) {
		return nil, nil, nil
	}
	if _, err := awsEndpointURL(conf); err != nil {
		return nil, nil, err
	}
	parsed, err := url.Parse(*cfg.BaseEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse BaseEndpoint: %w", err)
	}
	endpoint := smithyendpoints.Endpoint{URI: *parsed}
	snsOpts := []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: endpoint}),
	}
	sqsOpts := []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: endpoint}),
	}
	return snsOpts, sqsOpts, nil
}

// resolveAccountAndRegion trims quoting from the account id and falls back to
// the LocalStack account when a custom endpoint is configured without a
// usable id.
func resolveAccountAndRegion(conf Config, logger watermill.LoggerAdapter, fallbackRegion string) (string, string) {
	if conf == nil {
		return "", fallbackRegion
	}

	accountID := strings.Trim(conf.GetAWSAccountID(), "\"' ")
	region := conf.GetAWSRegion()
	if region == "" {
		region = fallbackRegion
	}

	if conf.GetAWSEndpoint() != "" && len(accountID) != awsAccountIDLength {
		logger.Info("Using LocalStack account id", watermill.LogFields{"configured_account_id": accountID})
		accountID = localstackAccountID
	}
	return accountID, region
}

func newTopicResolver(accountID, region string, logger watermill.LoggerAdapter) (sns.TopicResolver, error) {
	resolver, err := SNSTopicResolverFactory(accountID, region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, watermill.LogFields{
			"account_id": accountID,
			"region":     region,
		})
		return nil, err
	}
	return resolver, nil
}

func awsEndpointURL(conf Config) (*url.URL, error) {
	if conf == nil || conf.GetAWSEndpoint() == "" {
		return nil, nil
	}
	parsed, err := url.Parse(conf.GetAWSEndpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	return parsed, nil
}

func awsRegionOf(cfg *aws.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Region
}

func hasCustomEndpoint(cfg *aws.Config) bool {
	return cfg != nil && cfg.BaseEndpoint != nil && *cfg.BaseEndpoint != ""
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
