package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDSN(t *testing.T) {
	o := Options{Host: "db", Port: "5432", User: "assist", Password: "pw", Name: "deployassist"}
	assert.Equal(t, "host=db user=assist password=pw dbname=deployassist port=5432 sslmode=disable TimeZone=UTC", o.DSN())

	o.SSLMode = "require"
	assert.Contains(t, o.DSN(), "sslmode=require")
}

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()
	require.NoError(t, Ping(context.Background(), sqlDB))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = Ping(context.Background(), sqlDB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithoutPool(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}
