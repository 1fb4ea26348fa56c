// Package rest — минимальный клиент REST API платформы: текущий пользователь,
// личные каналы, сообщения каналов, отправка сообщений, закрытие каналов и
// вебхуки. Каждый вызов — один HTTP-запрос с токеном в Authorization и
// таймаутом 10 секунд; ошибки возвращаются как есть, повторов нет.
//
// Пример:
//
//	c := rest.NewClient(token, "")
//	ok, err := c.ValidateToken(ctx)
//	if err != nil || !ok { ... }
//	_ = c.PostMessage(ctx, "123456789", "hello")
package rest
