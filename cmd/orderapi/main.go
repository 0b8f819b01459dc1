package main

import (
	"net/http"

	"github.com/ZilDuck/solana-card-market/internal/config"
	"github.com/ZilDuck/solana-card-market/internal/config/di"
	"github.com/ZilDuck/solana-card-market/internal/orders"
	"go.uber.org/zap"
)

func main() {
	config.Init("orderapi")

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer container.Delete()

	router := orders.NewServer(container.GetOrderStore()).Router()

	zap.L().Info("Serving orders on :" + config.Get().Orders.Port)

	if err := http.ListenAndServe(":"+config.Get().Orders.Port, router); err != nil {
		zap.L().With(zap.Error(err)).Error("Failed to start order api")
	}
}
