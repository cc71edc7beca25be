package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Source — поставщик имён истёкших ключей.
type Source interface {
	// Listen подписывается и вызывает handle для каждого ключа в порядке
	// доставки. Блокирует до разрыва подписки или отмены ctx.
	Listen(ctx context.Context, handle func(key string)) error
}

// ExpiredChannel возвращает канал keyevent-уведомлений об истечении.
func ExpiredChannel(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}

// RedisSource — Source на pub/sub Redis.
//
// Требует notify-keyspace-events с классами E и x. Уведомления об
// истечении локальны для узла, поэтому в cluster источник подписывается
// на каждый master и сливает события в один поток. Порядок сохраняется
// в пределах узла.
type RedisSource struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSource создаёт источник для базы db.
func NewRedisSource(client redis.UniversalClient, db int) *RedisSource {
	return &RedisSource{client: client, channel: ExpiredChannel(db)}
}

// Channel возвращает имя канала подписки.
func (s *RedisSource) Channel() string {
	return s.channel
}

// Listen реализует Source.
func (s *RedisSource) Listen(ctx context.Context, handle func(key string)) error {
	subs, err := s.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	keys := make(chan string)

	// ReceiveMessage не реагирует на отмену ctx: чтение прерывает Close
	g.Go(func() error {
		<-gctx.Done()
		for _, ps := range subs {
			_ = ps.Close()
		}
		return nil
	})

	for _, ps := range subs {
		g.Go(func() error {
			for {
				msg, err := ps.ReceiveMessage(gctx)
				if err != nil {
					return fmt.Errorf("receive %s: %w", s.channel, err)
				}
				select {
				case keys <- msg.Payload:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	for {
		select {
		case key := <-keys:
			handle(key)
		case <-gctx.Done():
			err := g.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// subscribe открывает подписку на узле standalone/sentinel или на
// каждом master-узле cluster.
func (s *RedisSource) subscribe(ctx context.Context) ([]*redis.PubSub, error) {
	cluster, ok := s.client.(*redis.ClusterClient)
	if !ok {
		ps, err := subscribeNode(ctx, s.client, s.channel)
		if err != nil {
			return nil, err
		}
		return []*redis.PubSub{ps}, nil
	}

	var (
		mu   sync.Mutex
		subs []*redis.PubSub
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		ps, err := subscribeNode(ctx, node, s.channel)
		if err != nil {
			return fmt.Errorf("%s: %w", node.Options().Addr, err)
		}
		mu.Lock()
		subs = append(subs, ps)
		mu.Unlock()
		return nil
	})
	if err == nil && len(subs) == 0 {
		err = fmt.Errorf("subscribe %s: no cluster masters", s.channel)
	}
	if err != nil {
		for _, ps := range subs {
			_ = ps.Close()
		}
		return nil, err
	}
	return subs, nil
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

func subscribeNode(ctx context.Context, c subscriber, channel string) (*redis.PubSub, error) {
	ps := c.Subscribe(ctx, channel)

	// Дожидаемся подтверждения подписки
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return ps, nil
}
