package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/train-control-panel/backend/api/handlers"
	"github.com/train-control-panel/backend/internal/db"
	"github.com/train-control-panel/backend/internal/hub"
	"github.com/train-control-panel/backend/internal/recorder"
	"github.com/train-control-panel/backend/internal/repository"
	"github.com/train-control-panel/backend/internal/transport"
	"github.com/train-control-panel/backend/internal/ws"
)

func main() {
	// Get configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/frames.db")
	eventLogCap := getEnvInt("EVENT_LOG_CAP", hub.DefaultEventLogCap)
	scanWindow := time.Duration(getEnvInt("SCAN_TIMEOUT_MS", 10000)) * time.Millisecond
	connectTimeout := time.Duration(getEnvInt("CONNECT_TIMEOUT_MS", 10000)) * time.Millisecond
	fakeTransport := getEnv("FAKE_TRANSPORT", "") != ""

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Initialize database and frame archive
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	frameRepo := repository.NewFrameRepository(database)
	frameRecorder := recorder.New(frameRepo)
	defer frameRecorder.Close()

	// Initialize the hub transport
	var tr transport.Transport
	if fakeTransport {
		log.Println("FAKE_TRANSPORT set, using simulated hubs")
		tr = newFakeTransport()
	} else {
		ble, err := transport.NewBLE()
		if err != nil {
			log.Fatalf("Failed to initialize BLE transport: %v", err)
		}
		tr = ble
	}

	// Initialize registry and dispatcher
	registry := hub.NewRegistry(tr, hub.Config{
		EventLogCap:    eventLogCap,
		ConnectTimeout: connectTimeout,
	})
	registry.SetFrameSink(frameRecorder)
	defer registry.Close()

	dispatcher := hub.NewDispatcher(registry)

	// Initialize WebSocket service
	wsService := ws.NewService(registry, dispatcher)
	defer wsService.Close()

	// Initialize handlers
	hubHandler := handlers.NewHubHandler(registry, dispatcher, frameRepo, scanWindow)
	wsHandler := handlers.NewWebSocketHandler(wsService.Handler())

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		hubHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		registry.Close()
		wsService.Close()
		frameRecorder.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newFakeTransport seeds a simulated transport with a pair of hubs that
// report battery telemetry, for development without hardware.
func newFakeTransport() *transport.Simulator {
	sim := transport.NewSimulator()
	hubs := []*transport.SimHub{
		sim.AddHub("fa:ke:00:00:00:01", "Train Hub A"),
		sim.AddHub("fa:ke:00:00:00:02", "City Hub B"),
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		percent := byte(100)
		for range ticker.C {
			for _, h := range hubs {
				h.PushFrame([]byte{0x06, 0x00, 0x01, 0x06, 0x06, percent})
			}
			if percent > 0 {
				percent--
			}
		}
	}()

	return sim
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid value for %s: %q", key, raw)
	}
	return value
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
