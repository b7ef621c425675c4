package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskman/internal/auth"
	"taskman/internal/server"
	"taskman/internal/service"
	"taskman/internal/whitelist"
	db "taskman/repository/db"
	inmemory "taskman/repository/inmemory"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.Println("Запуск сервиса задач...")

	cfg := server.ReadConfig()

	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		log.Warnln("Не удалось применить миграции:", err)
	} else {
		log.Println("Миграции применены успешно")
	}

	var userRepo service.UserRepository
	var taskRepo service.TaskRepository
	var commentRepo service.CommentRepository

	dbStorage, err := db.NewStorage(cfg.DBStr)
	if err != nil {
		log.Warnln("Не удалось подключиться к БД, используем память:", err)
		inmem := inmemory.NewStorage()
		userRepo = inmem
		taskRepo = inmem
		commentRepo = inmem
	} else {
		userRepo = dbStorage
		taskRepo = dbStorage
		commentRepo = dbStorage
	}

	var store whitelist.Store
	redisStore, err := whitelist.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warnln("Не удалось подключиться к Redis, whitelist в памяти:", err)
		store = whitelist.NewMemoryStore()
	} else {
		store = redisStore
	}

	tokens := auth.NewProvider(cfg.JWTSecret, auth.DefaultTokenTTL)
	wl := whitelist.NewClient(store, auth.DefaultTokenTTL)

	users := service.NewUserService(userRepo, wl, tokens)
	tasks := service.NewTaskService(taskRepo, userRepo)
	comments := service.NewCommentService(commentRepo)

	api := server.NewTaskAPI(cfg, users, tasks, comments, tokens, wl)
	if api == nil {
		log.Fatal("Не удалось инициализировать API")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Сервис запущен на %s:%d", cfg.Addr, cfg.Port)
		if err := api.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Получен сигнал %v, начинаем graceful shutdown...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Errorln("Ошибка при graceful shutdown:", err)
		} else {
			log.Println("Graceful shutdown выполнен успешно")
		}

	case err := <-serverErr:
		log.Errorln("Ошибка сервера:", err)
	}

	log.Println("Сервис завершен")
}
