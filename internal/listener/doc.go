// Package listener принимает события истечения маркеров расписаний.
//
// Source поставляет имена истёкших ключей (RedisSource подписывается на
// __keyevent@<db>__:expired). Listener отбирает ключи маркеров, читает
// копию payload, декодирует domain.Marker и вызывает OnFire.
//
// События обрабатываются последовательно в порядке доставки. При
// разрыве подписки Listener переподписывается с экспоненциальной
// задержкой. События, истёкшие во время разрыва, не восстанавливаются:
// Redis не хранит pub/sub сообщения.
package listener
