package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 5 * time.Second
	pongWait        = 30 * time.Second
	pingPeriod      = 20 * time.Second
	shutdownTimeout = 5 * time.Second
	defaultClipPage = 50
)

var upgrader = websocket.Upgrader{
	// local control surface, no browser origin policy to enforce
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the HTTP control API
type Server struct {
	addr   string
	hub    *Hub
	board  *recording.StatusBoard
	feed   *EventFeed
	clips  catalog.ClipRepository
	logger logging.Logger
	engine *gin.Engine
}

type ServerOptions struct {
	Addr   string
	Hub    *Hub
	Board  *recording.StatusBoard
	Feed   *EventFeed
	Clips  catalog.ClipRepository // optional, enables GET /api/clips
	Logger logging.Logger
	Debug  bool
}

func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0, opts.Logger)
	}
	if opts.Board == nil {
		opts.Board = recording.NewStatusBoard()
	}
	if opts.Feed == nil {
		opts.Feed = NewEventFeed(0, opts.Logger)
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		addr:   opts.Addr,
		hub:    opts.Hub,
		board:  opts.Board,
		feed:   opts.Feed,
		clips:  opts.Clips,
		logger: opts.Logger,
	}

	router := gin.New()
	router.Use(s.requestLogger())
	router.Use(gin.Recovery())
	s.setupRoutes(router)
	s.engine = router
	return s
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/recording/start", s.submit(recording.CommandStart))
		api.POST("/recording/stop", s.submit(recording.CommandStop))
		api.POST("/recording/toggle", s.submit(recording.CommandToggleRecording))
		api.POST("/auto/toggle", s.submit(recording.CommandToggleAuto))
		api.GET("/status", s.getStatus)
		api.GET("/events", s.streamEvents)
		if s.clips != nil {
			api.GET("/clips", s.listClips)
			api.GET("/clips/:id", s.getClip)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "doorbell-camera",
		})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) submit(cmd recording.Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.hub.Submit(cmd) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Command queue is full"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"command": cmd.String()})
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Load())
}

func (s *Server) listClips(c *gin.Context) {
	query := catalog.ClipQuery{
		Origin: c.Query("origin"),
		Limit:  defaultClipPage,
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit. Expected a non-negative integer"})
			return
		}
		query.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset. Expected a non-negative integer"})
			return
		}
		query.Offset = offset
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since format. Expected RFC3339 format"})
			return
		}
		query.Since = &since
	}
	if v := c.Query("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid until format. Expected RFC3339 format"})
			return
		}
		query.Until = &until
	}

	clips, total, err := s.clips.Query(c.Request.Context(), query)
	if err != nil {
		s.logger.Error("failed to query clips", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if clips == nil {
		clips = []*catalog.Clip{}
	}

	c.JSON(http.StatusOK, gin.H{
		"clips": clips,
		"total": total,
	})
}

func (s *Server) getClip(c *gin.Context) {
	clip, err := s.clips.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("failed to get clip", "clip_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if clip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Clip not found"})
		return
	}
	c.JSON(http.StatusOK, clip)
}

// streamEvents upgrades to a websocket, sends a status snapshot and then
// forwards every feed message until either side goes away.
func (s *Server) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	remoteAddr := c.Request.RemoteAddr
	messages, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()

	status := s.board.Load()
	snapshot, err := encodeEnvelope("status", status.UpdatedAt, status)
	if err != nil {
		s.logger.Error("failed to encode status snapshot", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
		return
	}

	done := make(chan struct{})
	go readPump(conn, done)

	s.logger.Info("event client connected", "remote_addr", remoteAddr)
	writePump(conn, messages, done)
	s.logger.Info("event client disconnected", "remote_addr", remoteAddr)
}

// readPump discards inbound messages so control frames are processed and a
// disconnect is noticed
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, messages <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-messages:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Run serves until ctx is cancelled and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API failed: %w", err)
	case <-ctx.Done():
	}

	s.feed.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down control API: %w", err)
	}
	s.logger.Info("control API stopped")
	return nil
}
