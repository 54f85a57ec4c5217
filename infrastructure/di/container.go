// Package di assembles the application from its parts. Construction is
// explicit: each dependency is built once and handed to what needs it.
package di

import (
	"context"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/infrastructure/blockchain"
	"meterhub-backend/infrastructure/config"
	"meterhub-backend/infrastructure/messaging/eventbridge"
	"meterhub-backend/infrastructure/persistence/dynamodb"
	"meterhub-backend/infrastructure/utility"
	"meterhub-backend/interfaces/http/rest"
	"meterhub-backend/pkg/auth"
	apperrors "meterhub-backend/pkg/errors"
	"meterhub-backend/pkg/observability"
)

// Container holds the assembled application.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Handler http.Handler

	Projects ports.ProjectRepository
	Places   ports.PlaceRepository
	Trackers ports.TrackerRepository
	Readings ports.ReadingRepository
	Users    ports.UserRepository
	KeySets  ports.KeySetRepository
}

// NewContainer loads configuration and wires every component.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build logger")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load AWS configuration")
	}

	store := dynamodb.NewStore(awsdynamodb.NewFromConfig(awsCfg), cfg, logger)

	publisher := eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)

	var metrics ports.MetricsEmitter = observability.NopEmitter{}
	if cfg.MetricsEnable {
		metrics = observability.NewCloudWatchEmitter(awscloudwatch.NewFromConfig(awsCfg), logger)
	}

	projects := dynamodb.NewProjectRepository(store, logger)
	places := dynamodb.NewPlaceRepository(store, logger)
	trackers := dynamodb.NewTrackerRepository(store, logger)
	readings := dynamodb.NewReadingRepository(store, metrics, publisher, logger)
	users := dynamodb.NewUserRepository(store, logger)
	keySets := dynamodb.NewKeySetRepository(store, logger)

	verifier := auth.NewVerifier(cfg.JWKSEndpoint, cfg.JWTIssuer, cfg.JWTAudience, keySets, logger)

	assets := blockchain.NewClient(cfg.AssetGatewayURL, logger)
	utilityClient := utility.NewClient(cfg.UtilityGatewayURL, logger)

	router := rest.NewRouter(
		verifier,
		projects,
		places,
		trackers,
		readings,
		users,
		assets,
		utilityClient,
		publisher,
		logger,
	)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Handler:  router.Setup(),
		Projects: projects,
		Places:   places,
		Trackers: trackers,
		Readings: readings,
		Users:    users,
		KeySets:  keySets,
	}, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
