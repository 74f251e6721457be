package logger

import (
	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/instance"
)

// ForService builds the process logger from the app settings. Every entry
// carries the environment and the instance id.
func ForService(name string, app config.AppConfig) *Logger {
	return New(Options{
		ServiceName: name,
		Level:       ParseLevel(app.LogLevel),
		WarnStack:   app.LogWarnStack,
		Format:      app.LogFormat,
		Fields: map[string]any{
			"env":      app.Env,
			"instance": instance.GetID(),
		},
	})
}
