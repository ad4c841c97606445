package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/wayquest/backend/core"
)

const publishTimeout = 5 * time.Second

// redisService publishes progress events to a Redis pub/sub channel consumed
// by the analytics collector, the notification service and the reward gateway.
type redisService struct {
	client  *redis.Client
	channel string
	logger  core.Logger
}

var _ core.EventService = (*redisService)(nil)

func NewRedisService(conf *core.Config, logger core.Logger) core.EventService {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	return &redisService{
		client:  client,
		channel: conf.Redis.EventChannel,
		logger:  logger,
	}
}

func (svc redisService) PublishEvents(events ...*core.ProgressEvent) {
	for _, evt := range events {
		go svc.publish(evt)
	}
}

// publish is best-effort: a dropped event never fails the originating request,
// it is only logged. Consumers needing replay read the ledger instead.
func (svc redisService) publish(evt *core.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	data, err := json.Marshal(evt)
	if err != nil {
		svc.logger.Error("marshalling event", errors.Wrap(err, evt.Name))
		return
	}
	if err := svc.client.Publish(ctx, svc.channel, data).Err(); err != nil {
		svc.logger.Error("publishing event", errors.Wrap(err, evt.Name))
	}
}
