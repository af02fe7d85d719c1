package main

import (
	"net/http"

	"github.com/ZilDuck/zerosum-market-resolver/internal/api"
	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
	"github.com/ZilDuck/zerosum-market-resolver/internal/config/di"
	"go.uber.org/zap"
)

func main() {
	config.Init()
	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}

	router := api.NewServer(
		container.GetAggregator(),
		container.GetDiscovery(),
		container.GetCallBuilder(),
	).Router()

	zap.L().With(zap.String("network", container.GetNetwork().Key)).Info("Serving marketplace on :" + config.Get().HttpPort)

	if err := http.ListenAndServe(":"+config.Get().HttpPort, router); err != nil {
		zap.L().With(zap.Error(err)).Error("Failed to start marketplace server")
	}
}
