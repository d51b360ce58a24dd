package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
)

func TestConnString(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "123456",
		DBName:   "ecommerce",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=123456 dbname=ecommerce sslmode=disable",
		ConnString(cfg))
}

func TestMigrateURL_EscapesCredentials(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "db",
		Port:     "5432",
		User:     "shop",
		Password: "p@ss/word",
		DBName:   "ecommerce",
		SSLMode:  "require",
	}

	assert.Equal(t, "pgx5://shop:p%40ss%2Fword@db:5432/ecommerce?sslmode=require", migrateURL(cfg))
}
