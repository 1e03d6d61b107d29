//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/yamori/fedi"
	"github.com/yamori/fedi/sqlite"
)

func createServer(log *zerolog.Logger) (*fedi.Server, error) {
	wire.Build(
		fedi.NewHandler,
		fedi.NewServer,
		fedi.NewURLResolver,
		fedi.ParseConfig,
		fedi.NewProcessor,
		fedi.NewRemoteServer,
		sqlite.NewSession,
		sqlite.NewSQLite,
		sqlite.NewAccountDB,
		sqlite.NewFollowDB,
	)
	return nil, nil
}
