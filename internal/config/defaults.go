package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			EnvFile:  ".env",
		},
		Telegram: TelegramConfig{
			RateLimitPerMinute: 60,
			RateBurst:          20,
			TimeoutSeconds:     30,
		},
		Dispatch: DispatchConfig{
			TargetLength:     500,
			MaxLength:        4096,
			PacingMs:         500,
			QuestionPacingMs: 300,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "~/.scopelock/scopelock.db",
		},
		AutoFix: AutoFixConfig{
			Host:           "0.0.0.0",
			Port:           3100,
			Path:           "/vercel-webhook",
			Command:        "claude",
			Args:           defaultAutoFixArgs(),
			TeamSlug:       "mindprotocol",
			TimeoutSeconds: 1800,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

func defaultAutoFixArgs() []string {
	return []string{"-p", "{prompt}", "--continue", "--dangerously-skip-permissions"}
}
