package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/netx"
	"github.com/sarbazinfo/sarbaz-server/internal/server/config"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/repomanager"
)

// Completer produces an assistant reply for a user message.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

// HTTPCompleter relays messages to the upstream completion endpoint.
type HTTPCompleter struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPCompleter(url, apiKey string, timeout time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Message string `json:"message"`
}

type completionResponse struct {
	Reply string `json:"reply"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, message string) (string, error) {
	var out completionResponse
	err := netx.PostJSON(ctx, c.client, c.url, "Bearer "+c.apiKey, completionRequest{Message: message}, &out)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// ChatResult carries the reply plus the metering state shown to the client.
type ChatResult struct {
	Reply      string
	UsedToday  int
	DailyLimit int
	Unlimited  bool
}

// AIService meters and relays AI chat requests. Free accounts get a per-day
// quota; premium accounts are not metered.
type AIService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	completer      Completer
	logger         logging.Logger
	freeDailyLimit int
	now            func() time.Time
}

func NewAIService(db *sql.DB, m repomanager.RepositoryManager, completer Completer, logger logging.Logger, cfg *config.Config) *AIService {
	return &AIService{
		db:             db,
		repomanager:    m,
		completer:      completer,
		logger:         logger,
		freeDailyLimit: cfg.AIFreeDailyLimit,
		now:            time.Now,
	}
}

// Chat admits the request against the daily quota, then relays it upstream.
// The slot is counted on admission: an upstream failure does not refund it,
// so a flapping upstream cannot be used to probe past the limit.
func (s *AIService) Chat(ctx context.Context, user *models.User, message string) (*ChatResult, error) {
	now := s.now()
	result := &ChatResult{DailyLimit: s.freeDailyLimit}

	if user.IsPremium(now) {
		result.Unlimited = true
	} else {
		count, err := s.repomanager.AIUsage(s.db).Increment(ctx, user.ID, dayOf(now), s.freeDailyLimit)
		if err != nil {
			if errors.Is(err, common.ErrDailyLimitReached) {
				return nil, err
			}
			return nil, fmt.Errorf("error counting usage: %v", err)
		}
		result.UsedToday = count
	}

	reply, err := s.completer.Complete(ctx, message)
	if err != nil {
		s.logger.Error(ctx, "ai upstream call failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("error completing chat: %v", err)
	}
	result.Reply = reply
	return result, nil
}

// UsageToday returns how many metered requests the user made today.
func (s *AIService) UsageToday(ctx context.Context, userID int64) (int, error) {
	count, err := s.repomanager.AIUsage(s.db).CountFor(ctx, userID, dayOf(s.now()))
	if err != nil {
		return 0, fmt.Errorf("error reading usage: %v", err)
	}
	return count, nil
}

// FreeDailyLimit exposes the configured quota for profile responses.
func (s *AIService) FreeDailyLimit() int {
	return s.freeDailyLimit
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
