// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/app"
	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/internal/handler"
	"pdf-vectorize-go/internal/middleware"
	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/kafka"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 装配存储、向量库、embedding 和流水线
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	a, err := app.New(rootCtx, cfg)
	if err != nil {
		log.Fatal("组件初始化失败", err)
	}
	defer a.Close()

	// 4. Kafka 异步通道（可选）
	var producer service.TaskProducer
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka)
		defer p.Close()
		producer = p

		consumer := kafka.NewConsumer(cfg.Kafka, a.Redis, a.Processor)
		go func() {
			defer close(consumerDone)
			consumer.Run(rootCtx)
		}()
	} else {
		close(consumerDone)
		log.Info("Kafka 未启用, 异步向量化接口不可用")
	}

	// 5. 初始化 Service (依赖注入)
	fileService := service.NewFileService(a.Blobs, a.Repo)
	vectorizeService := service.NewVectorizeService(a.Processor, a.Repo, producer)
	searchService := service.NewSearchService(a.Embedder, a.Store)

	fileHandler := handler.NewFileHandler(fileService, cfg.Server.MaxUploadMB<<20)
	vectorizeHandler := handler.NewVectorizeHandler(vectorizeService)
	searchHandler := handler.NewSearchHandler(searchService)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", handler.Health)

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	scope := func(string) gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }
	if cfg.JWT.Enabled {
		jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
		apiV1.Use(middleware.AuthMiddleware(jwtManager))
		scope = middleware.RequireScope
	}
	{
		files := apiV1.Group("/files", scope("files"))
		{
			files.POST("", fileHandler.Upload)
			files.GET("/*key", fileHandler.Get)
			files.DELETE("/*key", fileHandler.Delete)
		}

		vectorize := apiV1.Group("", scope("vectorize"))
		{
			vectorize.POST("/vectorize", vectorizeHandler.Vectorize)
			vectorize.POST("/vectorize/async", vectorizeHandler.VectorizeAsync)
			vectorize.DELETE("/documents/:fileHash", vectorizeHandler.DeleteDocument)
		}

		apiV1.POST("/search", scope("search"), searchHandler.Search)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者，正在处理的任务会因 ctx 取消而中止，offset 不提交
	cancelRoot()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}
