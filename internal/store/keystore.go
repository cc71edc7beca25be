package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Значения по умолчанию для Options.
const (
	DefaultPrefix       = "kronos"
	DefaultResolution   = time.Millisecond
	DefaultPayloadGrace = time.Hour
	DefaultClaimTTL     = 24 * time.Hour
	DefaultListLimit    = 100
)

// Options — параметры хранилища маркеров.
type Options struct {
	// Prefix — префикс всех ключей.
	Prefix string

	// Resolution — точность TTL. Задержка округляется вверх до кратного
	// Resolution и не бывает меньше одной единицы.
	Resolution time.Duration

	// PayloadGrace — насколько копия payload переживает маркер. За это
	// время слушатель должен успеть обработать событие истечения.
	PayloadGrace time.Duration

	// ClaimTTL — время жизни отметки о срабатывании.
	ClaimTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.PayloadGrace <= 0 {
		o.PayloadGrace = DefaultPayloadGrace
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = DefaultClaimTTL
	}
	return o
}

// Entry — ожидающее срабатывание.
type Entry struct {
	ID      string        `json:"id"`
	Payload []byte        `json:"payload"`
	TTL     time.Duration `json:"ttl"`
}

// KeyStore — хранилище TTL-маркеров расписаний в Redis.
//
// На каждое расписание три ключа (id в hash tag, чтобы в cluster все
// ключи расписания лежали в одном слоте):
//
//	<prefix>:marker:{id}            payload, TTL = задержка до срабатывания
//	<prefix>:payload:{id}           копия payload, TTL = задержка + PayloadGrace
//	<prefix>:fired:{id}:<fire_ms>   отметка срабатывания (SET NX)
//
// Событие истечения не несёт значение ключа, поэтому слушатель читает
// копию payload.
type KeyStore struct {
	client redis.UniversalClient
	opts   Options
}

// New создаёт KeyStore.
func New(client redis.UniversalClient, opts Options) *KeyStore {
	return &KeyStore{client: client, opts: opts.withDefaults()}
}

// finishScript удаляет копию payload, только если она не была
// перезаписана повторным Arm.
var finishScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Resolution возвращает точность TTL.
func (s *KeyStore) Resolution() time.Duration {
	return s.opts.Resolution
}

// RoundTTL округляет задержку вверх до Resolution (минимум одна единица).
func (s *KeyStore) RoundTTL(delay time.Duration) time.Duration {
	res := s.opts.Resolution
	if delay <= res {
		return res
	}
	return ((delay + res - 1) / res) * res
}

func (s *KeyStore) markerKey(id string) string {
	return s.opts.Prefix + ":marker:{" + id + "}"
}

func (s *KeyStore) payloadKey(id string) string {
	return s.opts.Prefix + ":payload:{" + id + "}"
}

func (s *KeyStore) claimKey(id string, fireAt time.Time) string {
	return fmt.Sprintf("%s:fired:{%s}:%d", s.opts.Prefix, id, fireAt.UnixMilli())
}

// MarkerID извлекает id расписания из ключа маркера.
// Для прочих ключей возвращает false.
func (s *KeyStore) MarkerID(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.opts.Prefix+":marker:{")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "}")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Arm взводит маркер: через RoundTTL(delay) Redis удалит его и пришлёт
// событие истечения. Повторный Arm с тем же id перезаписывает маркер.
//
// Оба ключа пишутся в MULTI/EXEC: при ошибке ничего не остаётся.
func (s *KeyStore) Arm(ctx context.Context, id string, payload []byte, delay time.Duration) error {
	ttl := s.RoundTTL(delay)
	marker := s.markerKey(id)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, marker, payload, ttl)
		pipe.Set(ctx, s.payloadKey(id), payload, ttl+s.opts.PayloadGrace)
		return nil
	})
	if err != nil {
		return storeErr("arm", marker, err)
	}
	return nil
}

// Disarm снимает маркер и копию payload. Возвращает false, если маркера
// не было (уже сработал или не существовал).
//
// Если маркер истёк до вызова, событие могло уже уйти слушателю.
func (s *KeyStore) Disarm(ctx context.Context, id string) (bool, error) {
	marker := s.markerKey(id)

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, marker)
		pipe.Del(ctx, s.payloadKey(id))
		return nil
	})
	if err != nil {
		return false, storeErr("disarm", marker, err)
	}
	return del.Val() > 0, nil
}

// Load читает копию payload для сработавшего маркера.
//
// live = true означает, что маркер с этим id снова взведён: событие
// относится к прошлому срабатыванию и уже обработано.
func (s *KeyStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	key := s.payloadKey(id)

	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	exists := pipe.Exists(ctx, s.markerKey(id))
	_, err := pipe.Exec(ctx)

	live := exists.Val() > 0
	if errors.Is(get.Err(), redis.Nil) {
		return nil, live, storeErr("load", key, ErrNotFound)
	}
	if err != nil {
		return nil, false, storeErr("load", key, err)
	}
	return []byte(get.Val()), live, nil
}

// Claim отмечает срабатывание fireAt расписания id.
// Возвращает false, если оно уже было отмечено.
func (s *KeyStore) Claim(ctx context.Context, id string, fireAt time.Time) (bool, error) {
	key := s.claimKey(id, fireAt)
	ok, err := s.client.SetNX(ctx, key, time.Now().UnixMilli(), s.opts.ClaimTTL).Result()
	if err != nil {
		return false, storeErr("claim", key, err)
	}
	return ok, nil
}

// Finish удаляет копию payload однократного расписания, если она
// совпадает с payload.
func (s *KeyStore) Finish(ctx context.Context, id string, payload []byte) (bool, error) {
	key := s.payloadKey(id)
	n, err := finishScript.Run(ctx, s.client, []string{key}, payload).Int()
	if err != nil {
		return false, storeErr("finish", key, err)
	}
	return n > 0, nil
}

// Inspect возвращает ожидающее срабатывание по id.
func (s *KeyStore) Inspect(ctx context.Context, id string) (*Entry, error) {
	key := s.markerKey(id)

	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	_, err := pipe.Exec(ctx)

	if errors.Is(get.Err(), redis.Nil) {
		return nil, storeErr("inspect", key, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("inspect", key, err)
	}

	return &Entry{ID: id, Payload: []byte(get.Val()), TTL: pttl.Val()}, nil
}

// List возвращает до limit ожидающих срабатываний, отсортированных
// по оставшемуся времени.
func (s *KeyStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	keys, err := s.scanMarkers(ctx, limit)
	if err != nil {
		return nil, storeErr("list", "", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		id, ok := s.MarkerID(key)
		if !ok {
			continue
		}
		e, err := s.Inspect(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// истёк между SCAN и GET
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TTL < entries[j].TTL
	})
	return entries, nil
}

// scanMarkers собирает ключи маркеров через SCAN. В cluster проходит
// по всем master-узлам.
func (s *KeyStore) scanMarkers(ctx context.Context, limit int) ([]string, error) {
	pattern := s.opts.Prefix + ":marker:*"

	cluster, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return scanNode(ctx, s.client, pattern, limit)
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		found, err := scanNode(ctx, node, pattern, limit)
		if err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func scanNode(ctx context.Context, c redis.Cmdable, pattern string, limit int) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, k)
			if len(keys) >= limit {
				return keys, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping проверяет доступность Redis.
func (s *KeyStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

// EnableNotifications включает события истечения ключей
// (notify-keyspace-events += Ex), сохраняя уже включённые классы.
// В cluster настройка применяется к каждому master-узлу.
//
// Управляемые сервисы Redis часто запрещают CONFIG: тогда события
// нужно включить в настройках сервиса.
func (s *KeyStore) EnableNotifications(ctx context.Context) error {
	cluster, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return enableNotifications(ctx, s.client)
	}
	return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		return enableNotifications(ctx, node)
	})
}

func enableNotifications(ctx context.Context, c redis.Cmdable) error {
	const param = "notify-keyspace-events"

	current, err := c.ConfigGet(ctx, param).Result()
	if err != nil {
		return storeErr("config get", param, err)
	}

	flags := current[param]
	for _, f := range []string{"E", "x"} {
		if !strings.Contains(flags, f) && !(f == "x" && strings.Contains(flags, "A")) {
			flags += f
		}
	}
	if flags == current[param] {
		return nil
	}

	if err := c.ConfigSet(ctx, param, flags).Err(); err != nil {
		return storeErr("config set", param, err)
	}
	return nil
}
