// Package gateway реализует клиент шлюза реального времени: одно постоянное
// websocket-соединение, через которое аккаунт выставляет присутствие.
//
// Жизненный цикл соединения:
//
//	DISCONNECTED → CONNECTING → IDENTIFYING → READY → DISCONNECTED
//
//   - EnsureConnected открывает соединение, через SettleDelay шлёт identify
//     (op 2) и ждёт dispatch READY. Нет READY за ReadyTimeout — соединение
//     закрывается, ждущие получают ErrReadyTimeout.
//   - hello (op 10) запускает пульс {"op":1,"d":null} с указанным интервалом;
//     новый hello гасит прежний пульс.
//   - закрытие соединения сбрасывает состояние в DISCONNECTED, следующий
//     EnsureConnected подключится заново с новым identify.
//
// Соединением владеет одна горутина сессии; EnsureConnected, Send и
// Disconnect — это сообщения ей, поэтому их можно звать из любых горутин.
//
// Пример:
//
//	s := gateway.New(gateway.Options{Identity: func() gateway.Identity {
//	    return gateway.Identity{Token: token, Status: "online"}
//	}})
//	defer s.Close()
//	if err := s.EnsureConnected(ctx); err != nil { ... }
//	_ = s.Send(ctx, gateway.PresenceUpdatePayload("idle", "brb"))
package gateway
