package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"freight-settlement-service/internal/config"
	"freight-settlement-service/internal/controller"
	"freight-settlement-service/internal/logger"
	"freight-settlement-service/internal/middleware"
	"freight-settlement-service/internal/rabbit"
	"freight-settlement-service/internal/repository"
	"freight-settlement-service/internal/service"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	// Conexión a MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("error conectando a MongoDB", zap.Error(err))
	}
	db := client.Database(cfg.MongoDBName)

	// Conexión a RabbitMQ
	conn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("error conectando a RabbitMQ", zap.Error(err))
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("error creando canal en RabbitMQ", zap.Error(err))
	}

	publisher, err := rabbit.NewPublisher(ch)
	if err != nil {
		log.Fatal("error declarando exchange de eventos", zap.Error(err))
	}

	// Repositorios y servicios
	orderRepo := repository.NewMongoOrderRepository(db)
	escrowRepo := repository.NewMongoEscrowRepository(db)
	escrowService := service.NewEscrowService(escrowRepo, log)
	orderService := service.NewOrderService(orderRepo, escrowService, publisher, log)
	authService := service.NewAuthService(cfg.AuthURL)

	// Worker: genera el borrador de cierre cuando un pedido llega a delivered
	rabbit.SetupConsumers(ch, orderService, log)

	// Handlers
	orderCtrl := controller.NewOrderController(orderService, escrowService)
	escrowCtrl := controller.NewEscrowController(escrowService, orderService)

	// Router
	r := gin.Default()

	// Rutas públicas
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/validators/tax-id", orderCtrl.ValidateTaxID)

	// Rutas protegidas (requieren token)
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(authService))

	auth.POST("/freight-orders", orderCtrl.CreateOrder)
	auth.GET("/freight-orders", orderCtrl.ListOrders)
	auth.GET("/freight-orders/:id", orderCtrl.GetOrder)
	auth.GET("/freight-orders/:id/tracking", orderCtrl.GetHistory)
	auth.POST("/freight-orders/:id/tracking", orderCtrl.AppendTracking)
	auth.POST("/freight-orders/:id/ai-closure", orderCtrl.GenerateClosure)
	auth.POST("/freight-orders/:id/complete-closure", orderCtrl.CompleteClosure)
	auth.POST("/freight-orders/:id/cancel", orderCtrl.CancelOrder)
	auth.POST("/freight-orders/:id/dispute", orderCtrl.FlagDispute)
	auth.GET("/escrow/mine", escrowCtrl.ListMine)

	// Rutas admin (ops de escrow)
	admin := auth.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.POST("/escrow/:orderId/release", escrowCtrl.Release)
	admin.POST("/escrow/:orderId/cancel", escrowCtrl.Cancel)
	admin.POST("/escrow/:orderId/dispute", escrowCtrl.MarkDisputed)

	// Ejecutar servidor
	log.Info("Freight Settlement Service ejecutándose", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
