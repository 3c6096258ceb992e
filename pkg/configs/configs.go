// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package configs

// PostgresConfig carries connection settings for the attempt store.
type PostgresConfig struct {
	Host               string         `mapstructure:"host" validate:"required"`
	Port               int            `mapstructure:"port" validate:"required"`
	DbName             string         `mapstructure:"db_name" validate:"required"`
	Auth               PostgresAuth   `mapstructure:"auth" validate:"required"`
	MaxOpenConnection  int            `mapstructure:"max_open_connection"`
	MaxIdealConnection int            `mapstructure:"max_ideal_connection"`
	SslMode            string         `mapstructure:"ssl_mode"`
}

type PostgresAuth struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
}

// RedisConfig carries connection settings for the live-session cache.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

// SpeechConfig carries the Azure Cognitive Services subscription used
// for both continuous recognition and question synthesis.
type SpeechConfig struct {
	Key      string `mapstructure:"key" validate:"required"`
	Region   string `mapstructure:"region" validate:"required"`
	Language string `mapstructure:"language"`
	Voice    string `mapstructure:"voice"`
}

// BlobStoreConfig addresses the block-oriented store that receives
// interview recordings. Endpoint is the account base URL; SasToken is
// appended to every block/commit request.
type BlobStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required"`
	Container string `mapstructure:"container" validate:"required"`
	SasToken  string `mapstructure:"sas_token"`
}
