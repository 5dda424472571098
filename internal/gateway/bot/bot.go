package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattermost/mattermost-server/v6/model"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/retry"
	"github.com/Xausdorf/votechain/internal/usecase"
	"github.com/Xausdorf/votechain/internal/utils"
)

const maxRetries = 5

var (
	ErrTokenNotSet  = errors.New("mattermost token is not set")
	ErrServerNotSet = errors.New("mattermost URL is not set")
)

type Config struct {
	mmTeamName string
	mmToken    string
	mmServer   string
	location   *time.Location
}

// LoadConfig reads MM_TEAM, MM_TOKEN, MM_SERVER and TIMEZONE.
func LoadConfig() (Config, error) {
	var cfg Config

	cfg.mmTeamName = utils.Env("MM_TEAM", "VotingBot")
	cfg.mmToken = utils.Env("MM_TOKEN", "")
	if cfg.mmToken == "" {
		return Config{}, ErrTokenNotSet
	}
	cfg.mmServer = utils.Env("MM_SERVER", "")
	if cfg.mmServer == "" {
		return Config{}, ErrServerNotSet
	}
	loc, err := time.LoadLocation(utils.Env("TIMEZONE", "Local"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.location = loc

	return cfg, nil
}

type VotingBot struct {
	cfg             Config
	client          *model.Client4
	webSocketClient *model.WebSocketClient
	user            *model.User
	orch            *usecase.Orchestrator
	clock           func() time.Time
	logger          *zap.Logger
}

func NewVotingBot(cfg Config, orch *usecase.Orchestrator, logger *zap.Logger) (*VotingBot, error) {
	b := newVotingBot(cfg, orch, logger)
	b.client = model.NewAPIv4Client(cfg.mmServer)
	b.client.SetToken(cfg.mmToken)

	user, _, err := b.client.GetMe("")
	if err != nil {
		return nil, fmt.Errorf("could not log in to mattermost: %w", err)
	}
	logger.Info("logged in to mattermost", zap.String("user", user.Username), zap.String("user_id", user.Id))
	b.user = user

	team, _, err := b.client.GetTeamByName(cfg.mmTeamName, "")
	if err != nil {
		return nil, fmt.Errorf("could not find team %s: %w", cfg.mmTeamName, err)
	}
	logger.Info("team found", zap.String("team", team.Name), zap.String("team_id", team.Id))

	return b, nil
}

func newVotingBot(cfg Config, orch *usecase.Orchestrator, logger *zap.Logger) *VotingBot {
	if cfg.location == nil {
		cfg.location = time.Local
	}
	return &VotingBot{
		cfg:    cfg,
		orch:   orch,
		clock:  time.Now,
		logger: logger,
		user:   &model.User{},
	}
}

// Listen handles posted messages until ctx is done, reconnecting the websocket when it drops.
func (b *VotingBot) Listen(ctx context.Context) error {
	cfg := retry.DefaultConfig()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var err error
		b.webSocketClient, err = model.NewWebSocketClient4(b.cfg.mmServer, b.client.AuthToken)
		if err != nil {
			delay := retry.Backoff(cfg, attempt)
			b.logger.Warn("could not connect mattermost websocket, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		b.webSocketClient.Listen()
		b.logger.Info("voting bot listening")

		if done := b.consume(ctx); done {
			return nil
		}
		b.logger.Warn("mattermost websocket closed, reconnecting")
	}
	return errors.New("could not connect mattermost websocket, max retries exceeded")
}

func (b *VotingBot) consume(ctx context.Context) bool {
	for {
		select {
		case event, ok := <-b.webSocketClient.EventChannel:
			if !ok {
				return false
			}
			go b.handleWebSocketEvent(ctx, event)
		case <-ctx.Done():
			return true
		}
	}
}

func (b *VotingBot) Close() {
	if b.webSocketClient != nil {
		b.logger.Info("closing mattermost websocket connection")
		b.webSocketClient.Close()
	}
}

func (b *VotingBot) handleWebSocketEvent(ctx context.Context, event *model.WebSocketEvent) {
	if event.EventType() != model.WebsocketEventPosted {
		return
	}

	post := &model.Post{}
	eventData, ok := event.GetData()["post"].(string)
	if !ok {
		b.logger.Warn("could not cast event data to string")
		return
	}
	if err := json.Unmarshal([]byte(eventData), &post); err != nil {
		b.logger.Warn("could not unmarshal event to post", zap.Error(err))
		return
	}

	if post.UserId == b.user.Id {
		return
	}

	if msg, ok := b.reply(ctx, post.UserId, post.Message); ok {
		b.Respond(post, msg)
	}
}

func (b *VotingBot) Respond(post *model.Post, msg string) {
	resp := &model.Post{}
	resp.ChannelId = post.ChannelId
	resp.Message = msg
	resp.RootId = post.Id

	if _, _, err := b.client.CreatePost(resp); err != nil {
		b.logger.Warn("could not respond to post", zap.String("post_id", post.Id), zap.Error(err))
	}
}
