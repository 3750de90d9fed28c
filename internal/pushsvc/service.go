package pushsvc

import (
	"context"
	"encoding/json"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/logger"
)

// Service owns the Web Push subscription store and VAPID keypair. It is
// opaque to the coordinator core: nothing in internal/coordinator or
// internal/subscribers imports this package.
type Service struct {
	store  *store
	push   config.PushConfig
	logger *logger.Logger
}

// NewService opens (creating if necessary) the subscription store at
// dbPath and binds it to the configured VAPID keypair.
func NewService(dbPath string, push config.PushConfig, log *logger.Logger) (*Service, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Service{store: st, push: push, logger: log.WithFields(zap.String("component", "pushsvc"))}, nil
}

func (s *Service) Close() error {
	return s.store.close()
}

// VAPIDPublicKey returns the public key clients need to create a
// subscription. Empty when the operator never configured a keypair.
func (s *Service) VAPIDPublicKey() string {
	return s.push.VAPIDPublicKey
}

func (s *Service) Subscribe(ctx context.Context, sub Subscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("pushsvc: subscription endpoint is required")
	}
	return s.store.upsert(ctx, sub)
}

func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	return s.store.remove(ctx, endpoint)
}

// Notify sends title/body to every stored subscription, dropping (and
// logging) individual delivery failures rather than aborting the batch —
// a stale or revoked endpoint on one browser should never block delivery
// to the rest.
func (s *Service) Notify(ctx context.Context, title, body string) error {
	if s.push.VAPIDPublicKey == "" || s.push.VAPIDPrivateKey == "" {
		return fmt.Errorf("pushsvc: VAPID keys not configured")
	}

	subs, err := s.store.list(ctx)
	if err != nil {
		return fmt.Errorf("pushsvc: failed to list subscriptions: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"title": title, "body": body})
	if err != nil {
		return err
	}

	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotification(payload, wpSub, &webpush.Options{
			Subscriber:      s.push.ContactEmail,
			VAPIDPublicKey:  s.push.VAPIDPublicKey,
			VAPIDPrivateKey: s.push.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			s.logger.Warn("push delivery failed", zap.Error(err), zap.String("endpoint", sub.Endpoint))
			continue
		}
		resp.Body.Close()
	}
	return nil
}
