package server

import (
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"

	"quizrally/internal/config"
	"quizrally/internal/image"
	"quizrally/internal/models"
	"quizrally/internal/quiz"
	"quizrally/internal/repository"
	"quizrally/internal/session"
)

type Server struct {
	config      *config.Config
	manager     *session.Manager
	quizEngine  *quiz.Engine
	quizStore   *quiz.Store
	imageEngine *image.Engine
	repo        repository.Repository
	router      *gin.Engine
	upgrader    websocket.Upgrader
	genLimiter  *ipRateLimiter
}

func NewServer(cfg *config.Config) *Server {
	manager := session.NewManager(cfg)

	var repo repository.Repository
	if cfg.DatabaseURL != "" {
		log.Printf("Using PostgreSQL game history")
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		repo = pg
	} else {
		log.Printf("Using in-memory game history")
		repo = repository.NewInMemoryRepository(cfg.MaxGameHistory)
	}

	// The session core only ever emits summaries; the repository subscribes.
	manager.OnGameComplete(func(summary models.GameSummary) {
		if err := repo.SaveGame(summary); err != nil {
			log.Printf("Failed to record game for room %s: %v", summary.RoomCode, err)
		}
	})

	quizStore := quiz.NewStore(time.Duration(cfg.QuizTTLSeconds)*time.Second, cfg.MaxQuizzes)
	quizStore.StartSweeping(time.Minute)
	go manager.Run()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // origin filtering happens in the CORS layer for REST; ws is code-gated
		},
	}

	server := &Server{
		config:      cfg,
		manager:     manager,
		quizEngine:  quiz.NewEngine(cfg),
		quizStore:   quizStore,
		imageEngine: image.NewEngine(cfg),
		repo:        repo,
		router:      gin.Default(),
		upgrader:    upgrader,
		genLimiter: newIPRateLimiter(
			time.Duration(cfg.RateLimitWindowSecs)*time.Second,
			cfg.RateLimitMaxRequests,
		),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	corsConfig := cors.DefaultConfig()
	if s.config.AllowedOrigins != "" {
		corsConfig.AllowOrigins = []string{s.config.AllowedOrigins}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "X-Requested-With"}
	s.router.Use(cors.New(corsConfig))

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "quizrally backend is running"})
	})
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.GET("/system/info", s.systemInfo)

	s.router.POST("/quiz/generate", s.generateQuiz)
	s.router.GET("/providers", s.listProviders)
	s.router.GET("/quiz/:id", s.getQuiz)
	s.router.GET("/quiz/:id/export", s.exportQuiz)
	s.router.POST("/quiz/import", s.importQuiz)
	s.router.POST("/quiz/generate-images", s.generateImages)
	s.router.GET("/quiz/:id/image/:question_id", s.getQuestionImage)
	s.router.GET("/sd/status", s.sdStatus)

	s.router.POST("/room/create", s.createRoom)
	s.router.GET("/room/:code/qr", s.roomQR)

	s.router.GET("/history", s.listHistory)
	s.router.GET("/history/:code", s.getHistory)

	s.router.GET("/ws/:code/:client_id", s.handleWebSocket)
}

func (s *Server) systemInfo(c *gin.Context) {
	c.JSON(200, gin.H{"ip": localIP()})
}

// localIP finds the outbound interface address without sending anything.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func (s *Server) generateQuiz(c *gin.Context) {
	if !s.genLimiter.Allow(c.ClientIP()) {
		c.JSON(429, gin.H{"error": "Too many quiz generations, slow down"})
		return
	}

	var req struct {
		Prompt       string `json:"prompt" binding:"required"`
		Difficulty   string `json:"difficulty"`
		NumQuestions int    `json:"num_questions"`
		Provider     string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if len(req.Prompt) > s.config.MaxPromptLength {
		c.JSON(400, gin.H{"error": "Prompt too long"})
		return
	}
	switch req.Difficulty {
	case "", "easy", "medium", "hard":
	default:
		c.JSON(400, gin.H{"error": "Invalid difficulty"})
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = s.config.DefaultNumQuestions
	}

	generated, err := s.quizEngine.Generate(req.Prompt, req.Difficulty, req.NumQuestions, req.Provider)
	if err != nil {
		switch err {
		case quiz.ErrDailyLimitExceeded:
			c.JSON(429, gin.H{"error": "Daily quiz generation limit reached"})
		case quiz.ErrUnknownProvider:
			c.JSON(400, gin.H{"error": "Unknown provider"})
		default:
			c.JSON(500, gin.H{"error": "Failed to generate quiz"})
		}
		return
	}

	quizID, err := s.quizStore.Put(generated)
	if err != nil {
		c.JSON(503, gin.H{"error": "Quiz storage is full, try again later"})
		return
	}
	c.JSON(200, gin.H{"quiz_id": quizID, "quiz": generated})
}

func (s *Server) listProviders(c *gin.Context) {
	c.JSON(200, gin.H{"providers": s.quizEngine.Providers()})
}

func (s *Server) getQuiz(c *gin.Context) {
	q, err := s.quizStore.Get(c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "Quiz not found"})
		return
	}
	c.JSON(200, q)
}

func (s *Server) exportQuiz(c *gin.Context) {
	q, err := s.quizStore.Get(c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "Quiz not found"})
		return
	}
	c.JSON(200, gin.H{"quiz": q})
}

func (s *Server) importQuiz(c *gin.Context) {
	var req struct {
		Quiz models.Quiz `json:"quiz" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := req.Quiz.Validate(); err != nil {
		c.JSON(400, gin.H{"error": "Invalid quiz: " + err.Error()})
		return
	}
	req.Quiz.Sanitize()

	quizID, err := s.quizStore.Put(&req.Quiz)
	if err != nil {
		c.JSON(503, gin.H{"error": "Quiz storage is full, try again later"})
		return
	}
	c.JSON(200, gin.H{"quiz_id": quizID})
}

func (s *Server) generateImages(c *gin.Context) {
	var req struct {
		QuizID     string `json:"quiz_id" binding:"required"`
		QuestionID *int   `json:"question_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	q, err := s.quizStore.Get(req.QuizID)
	if err != nil {
		c.JSON(404, gin.H{"error": "Quiz not found"})
		return
	}
	if !s.imageEngine.Available() {
		c.JSON(503, gin.H{"error": "Image generation server not available"})
		return
	}

	if req.QuestionID != nil {
		var target *models.Question
		for i := range q.Questions {
			if q.Questions[i].ID == *req.QuestionID {
				target = &q.Questions[i]
				break
			}
		}
		if target == nil {
			c.JSON(404, gin.H{"error": "Question not found"})
			return
		}
		prompt := target.ImagePrompt
		if prompt == "" {
			prompt = target.Text
		}
		img, err := s.imageEngine.Generate(prompt, "vibrant")
		if err != nil {
			c.JSON(500, gin.H{"error": "Image generation failed"})
			return
		}
		s.quizStore.SetImage(req.QuizID, *req.QuestionID, img)
		c.JSON(200, gin.H{"status": "success", "question_id": *req.QuestionID})
		return
	}

	images := s.imageEngine.GenerateForQuiz(q.Questions)
	for questionID, img := range images {
		s.quizStore.SetImage(req.QuizID, questionID, img)
	}
	c.JSON(200, gin.H{"status": "success", "generated_count": len(images)})
}

func (s *Server) getQuestionImage(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("question_id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid question id"})
		return
	}
	img, ok := s.quizStore.Image(c.Param("id"), questionID)
	if !ok {
		c.JSON(404, gin.H{"error": "Image not found"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(img)
	if err != nil {
		c.JSON(500, gin.H{"error": "Stored image is corrupt"})
		return
	}
	c.Data(200, "image/png", raw)
}

func (s *Server) sdStatus(c *gin.Context) {
	c.JSON(200, gin.H{"available": s.imageEngine.Available()})
}

func (s *Server) createRoom(c *gin.Context) {
	var req struct {
		QuizID    string `json:"quiz_id" binding:"required"`
		TimeLimit int    `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.TimeLimit == 0 {
		req.TimeLimit = s.config.DefaultTimeLimit
	}

	stored, err := s.quizStore.Get(req.QuizID)
	if err != nil {
		c.JSON(404, gin.H{"error": "Quiz not found"})
		return
	}

	// Rooms get their own copy with image URLs attached; quiz-store eviction
	// must never touch a running game.
	roomQuiz := models.Quiz{
		Title:     stored.Title,
		Questions: append([]models.Question(nil), stored.Questions...),
	}
	for i := range roomQuiz.Questions {
		q := &roomQuiz.Questions[i]
		if _, ok := s.quizStore.Image(req.QuizID, q.ID); ok {
			q.ImageURL = fmt.Sprintf("/quiz/%s/image/%d", req.QuizID, q.ID)
		}
	}

	code, token, err := s.manager.CreateRoom(&roomQuiz, req.TimeLimit)
	if err != nil {
		if err == session.ErrTooManyRooms {
			c.JSON(503, gin.H{"error": "Too many active rooms, try again later"})
			return
		}
		c.JSON(500, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(200, gin.H{"room_code": code, "organizer_token": token})
}

func (s *Server) roomQR(c *gin.Context) {
	code := c.Param("code")
	if s.manager.GetRoom(code) == nil {
		c.JSON(404, gin.H{"error": "Room not found"})
		return
	}
	joinURL := fmt.Sprintf("http://%s/?room=%s", c.Request.Host, code)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Data(200, "image/png", png)
}

func (s *Server) listHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	games, err := s.repo.ListGames(limit)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to list history"})
		return
	}
	c.JSON(200, gin.H{"games": games})
}

func (s *Server) getHistory(c *gin.Context) {
	game, err := s.repo.GetGame(c.Param("code"))
	if err != nil {
		c.JSON(404, gin.H{"error": "Game not found"})
		return
	}
	c.JSON(200, game)
}

func (s *Server) Start() error {
	return s.router.Run(":" + s.config.Port)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
