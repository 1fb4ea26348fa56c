// Package bot — “склейка” вокруг config, rest, gateway, presence и
// supervisor, реализующая сам бот аккаунта. Бот:
//   - рассылает сообщение по списку каналов с паузой между проходами
//     (advertiser);
//   - автоматически отвечает в личные сообщения (dm-responder);
//   - держит сессию шлюза живой, чтобы аккаунт был онлайн (onliner);
//   - выставляет статус и кастомный статус;
//   - закрывает все личные каналы одним действием.
//
// Каждый фоновый цикл — именованная задача supervisor'а: повторный запуск
// уже работающего цикла отклоняется, остановка ждёт завершения.
//
// Интерактивная часть — Menu: нумерованные меню поверх io.Reader/io.Writer,
// все изменения настроек сразу сохраняются в config.json.
//
// Пример:
//
//	store := config.NewStore("config.json")
//	_ = store.Load()
//	api := rest.NewClient("", rest.DefaultBaseURL)
//	sess := gateway.New(gateway.Options{Identity: bot.Identity(store)})
//	defer sess.Close()
//
//	b := bot.New(ctx, store, api, sess)
//	defer b.Stop()
//
//	m := bot.NewMenu(b, os.Stdin, os.Stdout)
//	if err := m.EnsureToken(ctx, api); err != nil { return err }
//	if err := m.PromptMissing(); err != nil { return err }
//	return m.Run(ctx)
package bot
