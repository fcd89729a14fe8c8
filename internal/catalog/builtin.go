package catalog

// Default returns a registry preloaded with the message templates of the
// built-in loggers. Callers register their own loggers on top of it.
func Default() *Registry {
	reg := NewRegistry()

	reg.Register("system").
		Add("service_started", "Service started").
		Add("service_stopped", "Service stopped").
		Add("purge_completed", "Purged {count} events older than {days} days").
		Add("tables_recreated", "Event tables were missing and have been recreated").
		AddLocalized("ru", "service_started", "Служба запущена").
		AddLocalized("ru", "service_stopped", "Служба остановлена")

	reg.Register("user").
		Add("user_logged_in", "Logged in").
		Add("user_logged_out", "Logged out").
		Add("user_login_failed", "Failed to log in with username \"{login}\"").
		AddLocalized("ru", "user_logged_in", "Вход выполнен").
		AddLocalized("ru", "user_logged_out", "Выход выполнен")

	reg.Register("api").
		Add("event_rejected", "Rejected event from {remote_addr}")

	return reg
}
