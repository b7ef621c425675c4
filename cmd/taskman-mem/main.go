package main

import (
	"taskman/internal/auth"
	"taskman/internal/server"
	"taskman/internal/service"
	"taskman/internal/whitelist"
	storage "taskman/repository/inmemory"

	log "github.com/sirupsen/logrus"
)

// Вариант без внешних зависимостей: хранилище и whitelist в памяти.
// Удобен для локальной разработки и демонстрации.
func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.Println("Запуск сервиса задач в памяти...")

	cfg := server.ReadConfig()

	repo := storage.NewStorage()
	tokens := auth.NewProvider(cfg.JWTSecret, auth.DefaultTokenTTL)
	wl := whitelist.NewClient(whitelist.NewMemoryStore(), auth.DefaultTokenTTL)

	users := service.NewUserService(repo, wl, tokens)
	tasks := service.NewTaskService(repo, repo)
	comments := service.NewCommentService(repo)

	api := server.NewTaskAPI(cfg, users, tasks, comments, tokens, wl)
	if api == nil {
		log.Fatal("Не удалось инициализировать API")
	}

	log.Printf("Сервис запущен на %s:%d", cfg.Addr, cfg.Port)
	log.Fatal(api.Start())
}
