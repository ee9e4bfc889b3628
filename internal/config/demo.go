package config

func boolPtr(b bool) *bool { return &b }

// demoConfig returns the editable demo settings used when PROVIDER=demo,
// so the agent can run without any provider credentials.
func demoConfig() *Config {
	return &Config{
		Timezone:        "America/New_York",
		IPCheckInterval: "5m",
		LogRetention:    "3 months",
		LogCleanupTime:  "03:30",
		CertManagement: CertManagement{
			Enabled:         true,
			CheckTime:       "02:30",
			Email:           "admin@demo.com",
			Staging:         true,
			RenewWithinDays: 30,
		},
		Domains: []DomainSpec{
			{
				Name:       "demo-server.com",
				DDNS:       true,
				AutoUpdate: boolPtr(true),
				SSL:        SSLSpec{Enabled: true, Wildcard: true},
			},
			{
				Name:       "backup-server.org",
				DDNS:       true,
				AutoUpdate: boolPtr(true),
				SSL:        SSLSpec{Enabled: true, Wildcard: true},
			},
			{
				Name:       "test-server.xyz",
				DDNS:       true,
				AutoUpdate: boolPtr(true),
				SSL:        SSLSpec{Enabled: false},
			},
			{
				Name:          "my-blog.net",
				DDNS:          true,
				AutoUpdate:    boolPtr(true),
				Notifications: boolPtr(false),
				SSL:           SSLSpec{Enabled: true},
			},
		},
		Notifications: Notifications{
			Enabled: true,
			Discord: ChannelConfig{Enabled: true, URL: "discord://token@webhookid"},
			SMTP: SMTPConfig{
				Enabled:   true,
				Host:      "smtp.demo.mail",
				Port:      587,
				User:      "demo",
				Pass:      "demo",
				FromEmail: "admin@demo.com",
				ToEmail:   "user@demo.com",
			},
		},
		Server:   ServerConfig{Port: 8080},
		DataDir:  "/config",
		CertsDir: "/certs",
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "/logs",
			File:       "domain-manager.log",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     90,
		},
	}
}
