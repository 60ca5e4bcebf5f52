package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"soilgate/auth"            //JWTの検証とロールの判定
	"soilgate/backend"         //シミュレーションバックエンドのRPC
	"soilgate/database"        //設定の読み込み、データベースとRedisの初期化
	"soilgate/middlewares"     //セッションガードと言語判定
	"soilgate/screens"         //画面ごとのHTTPリクエストの処理
	"soilgate/soil/broadcast"  //WebSocketでの状態通知
	"soilgate/soil/cache"      //ゲーム状態のキャッシュ
	"soilgate/soil/decision"   //ラウンドの決定の組み立て
	"soilgate/soil/history"    //履歴とアドバイザー
	"soilgate/soil/submission" //決定の送信
	"soilgate/utils"           //ロガーの初期化とCronジョブ

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func main() {
	logger, err := utils.InitLogger(gin.Mode() == gin.DebugMode) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}
	if config.JWTSecret == "" {
		logger.Fatal("JWT_SECRET が設定されていません")
	}
	auth.SetJwtKey(config.JWTSecret)

	// 非同期でデータベースとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		var err error
		db, err = database.InitDatabase(config, logger)
		if err != nil {
			logger.Fatal("データベースの初期化に失敗しました", zap.Error(err))
		}
		done <- true
	}()

	go func() {
		var err error
		rdb, err = database.InitRedis(config, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		done <- true
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	thresholds, err := history.LoadThresholds(config.InsightsPath)
	if err != nil {
		logger.Fatal("アドバイザーの閾値の読み込みに失敗しました", zap.Error(err))
	}

	client := backend.NewHTTPClient(config.BackendURL, config.BackendTimeout(), logger)
	sessions := database.NewSessionStore(rdb, logger)
	prefs := database.NewPreferenceStore(db, logger)

	states := cache.New(client, logger)
	hub := broadcast.NewHub(logger)
	states.OnUpdate(hub.BroadcastGameState)

	coordinator := submission.NewCoordinator(client, states, submission.Options{
		MaxAttempts: config.SubmitMaxAttempts,
		BaseDelay:   config.SubmitBaseDelay(),
		MaxDelay:    config.SubmitMaxDelay(),
	}, logger)

	validator := &auth.TokenValidator{Status: client, Sessions: sessions, Logger: logger}
	guards := middlewares.NewGuardRegistry(validator, config.GuardTimeout(), logger)
	decisions := decision.NewRegistry()

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.CronCleaner(states, guards, decisions, coordinator, prefs, config.CacheTTL(), logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}
	defer scheduler.Stop()

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "SessionID", "X-Client-ID"},
		ExposeHeaders:    []string{"Content-Length", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	app := &screens.App{
		Backend:     client,
		Cache:       states,
		Coordinator: coordinator,
		Decisions:   decisions,
		Sessions:    sessions,
		Validator:   validator,
		Guards:      guards,
		Preferences: prefs,
		Hub:         hub,
		Thresholds:  thresholds,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		Logger: logger,
	}
	//各HTTPリクエストのルーティング
	app.Register(router)

	logger.Info("Starting gateway", zap.String("addr", config.ListenAddr), zap.String("backend", config.BackendURL))
	if err := router.Run(config.ListenAddr); err != nil {
		logger.Fatal("Failed to run HTTP server", zap.Error(err))
	}
}
