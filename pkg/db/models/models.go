package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// SQLite-backed dev runs and tests. Postgres schemas come from goose migrations.
func All() []any {
	return []any{
		&QuizSession{},
		&AnswerSelection{},
		&StoreOrder{},
		&OrderAttribution{},
		&QuizAnalyticsDaily{},
		&AnalyticsSessionFact{},
		&AnalyticsOrderFact{},
		&SyncWatermark{},
		&OutboxEvent{},
	}
}
