package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/emu-entities/internal/config"
	"github.com/emu-entities/internal/db"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/store"
	"github.com/emu-entities/internal/web"
)

func main() {
	configFile := flag.String("config", "", "JSON server configuration (defaults to WEB_* environment variables)")
	flag.Parse()

	// Load environment configuration
	config.LoadEnv()
	debug.Init(config.GetEnvBool("DEBUG", false))

	fmt.Println("=== EMu Entity Review ===")

	webConfig := web.DefaultConfig()
	path := *configFile
	if path == "" {
		path = config.GetEnv("WEB_CONFIG", "")
	}
	if path != "" {
		cfg, err := web.LoadConfig(path)
		if err != nil {
			debug.Fatalf("Failed to load %s: %v", path, err)
		}
		webConfig = cfg
	}
	fmt.Printf("Server: http://%s:%d\n", webConfig.Server.Host, webConfig.Server.Port)
	fmt.Printf("Database: %s\n", config.GetEnv("DB_NAME", "emu_entities"))

	dbConn, err := db.NewConnection()
	if err != nil {
		debug.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	runs := store.New(dbConn.DB)
	if err := runs.EnsureSchema(context.Background()); err != nil {
		debug.Fatalf("Failed to prepare schema: %v", err)
	}
	fmt.Printf("Database connected successfully\n")
	fmt.Printf("API key required: %v\n\n", webConfig.Auth.APIKey != "")

	server := web.NewServer(webConfig, runs)
	if err := server.Start(); err != nil {
		debug.Fatalf("Server failed: %v", err)
	}
}
