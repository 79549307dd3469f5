package config

import "github.com/opengovern/og-util/pkg/koanf"

type Config struct {
	Postgres koanf.Postgres   `json:"postgres,omitempty" koanf:"postgres"`
	Http     koanf.HttpServer `json:"http,omitempty" koanf:"http"`
	NATS     koanf.NATS       `json:"nats,omitempty" koanf:"nats"`

	USASpendingBaseURL string `json:"usaspending_base_url,omitempty" koanf:"usaspending_base_url"`
	GrantsGovBaseURL   string `json:"grantsgov_base_url,omitempty" koanf:"grantsgov_base_url"`
	SAMGovBaseURL      string `json:"samgov_base_url,omitempty" koanf:"samgov_base_url"`
	SAMGovAPIKey       string `json:"samgov_api_key,omitempty" koanf:"samgov_api_key"`
	NIHReporterBaseURL string `json:"nih_reporter_base_url,omitempty" koanf:"nih_reporter_base_url"`
	NSFBaseURL         string `json:"nsf_base_url,omitempty" koanf:"nsf_base_url"`

	NASBORefreshIntervalHours int64 `json:"nasbo_refresh_interval_hours,omitempty" koanf:"nasbo_refresh_interval_hours"`
}

type WorkerConfig struct {
	Postgres koanf.Postgres `json:"postgres,omitempty" koanf:"postgres"`
	NATS     koanf.NATS     `json:"nats,omitempty" koanf:"nats"`

	PrometheusPushAddress string `json:"prometheus_push_address,omitempty" koanf:"prometheus_push_address"`

	USASpendingBaseURL string `json:"usaspending_base_url,omitempty" koanf:"usaspending_base_url"`
	GrantsGovBaseURL   string `json:"grantsgov_base_url,omitempty" koanf:"grantsgov_base_url"`
}
