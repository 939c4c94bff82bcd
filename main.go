package main

import (
	"log"

	"quizrally/internal/config"
	"quizrally/internal/server"
)

func main() {
	cfg := config.Load()
	srv := server.NewServer(cfg)
	log.Printf("Starting quizrally server on port %s", cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
